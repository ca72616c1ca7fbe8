package analytics

import (
	"github.com/mileusna/useragent"

	"beacon/internal/config"
	"beacon/internal/models"
	"beacon/pkg/logger"
)

// Rule identifies the exclusion rule that suppressed a hit. The values are
// the setting names they correspond to, so diagnostics read back to config.
type Rule string

const (
	RuleNone                Rule = ""
	RuleMasterSwitch        Rule = "sendAnalyticsData"
	RuleDevMode             Rule = "sendAnalyticsInDevMode"
	RuleConsoleRequest      Rule = "consoleRequest"
	RuleControlPanelRequest Rule = "controlPanelRequest"
	RuleLivePreview         Rule = "livePreview"
	RuleServerExcludes      Rule = "serverExcludes"
	RuleBotUserAgent        Rule = "filterBotUserAgents"
	RuleAdminExclude        Rule = "adminExclude"
	RuleGroupExcludes       Rule = "groupExcludes"
)

// ExclusionEngine evaluates the ordered suppression rules. Evaluation is a
// pure function of the request snapshot and the settings; recording the
// exclusion reason is a separate step via LogExclusion.
type ExclusionEngine struct {
	settings *config.TrackingSettings
	devMode  bool
	log      *logger.Logger
}

func NewExclusionEngine(settings *config.TrackingSettings, devMode bool, log *logger.Logger) *ExclusionEngine {
	return &ExclusionEngine{
		settings: settings,
		devMode:  devMode,
		log:      log,
	}
}

// Evaluate runs the rules in fixed order and short-circuits on the first
// match, returning whether the hit may be sent and the rule that blocked it.
func (e *ExclusionEngine) Evaluate(rc models.RequestContext) (bool, Rule) {
	if !e.settings.SendAnalyticsData {
		return false, RuleMasterSwitch
	}

	if !e.settings.SendAnalyticsInDevMode && e.devMode {
		return false, RuleDevMode
	}

	if rc.IsConsole {
		return false, RuleConsoleRequest
	}

	if rc.IsControlPanel {
		return false, RuleControlPanelRequest
	}

	if rc.IsLivePreview {
		return false, RuleLivePreview
	}

	for attr, patterns := range e.settings.ServerExcludes {
		value, ok := serverAttribute(rc, attr)
		if !ok {
			continue
		}
		for _, re := range patterns {
			if re.MatchString(value) {
				return false, RuleServerExcludes
			}
		}
	}

	if e.settings.FilterBotUserAgents {
		if ua := useragent.Parse(rc.UserAgent); ua.Bot {
			return false, RuleBotUserAgent
		}
	}

	if rc.Authenticated {
		if e.settings.AdminExclude && rc.IsAdmin {
			return false, RuleAdminExclude
		}

		for _, group := range e.settings.GroupExcludes {
			for _, member := range rc.Groups {
				if member == group {
					return false, RuleGroupExcludes
				}
			}
		}
	}

	return true, RuleNone
}

// LogExclusion emits the exclusion diagnostic when configured to, or always
// in development mode.
func (e *ExclusionEngine) LogExclusion(rule Rule, rc models.RequestContext) {
	if !e.settings.LogExcludedAnalytics && !e.devMode {
		return
	}
	e.log.Info("Analytics excluded", map[string]any{
		"rule": string(rule),
		"ip":   rc.IPAddress,
	})
}

// serverAttribute maps a configured exclusion attribute name onto the
// request snapshot field it tests.
func serverAttribute(rc models.RequestContext, name string) (string, bool) {
	switch name {
	case "remoteAddr":
		return rc.IPAddress, true
	case "userAgent":
		return rc.UserAgent, true
	case "referrer":
		return rc.Referrer, true
	case "host":
		return rc.Host, true
	case "path":
		return rc.Path, true
	default:
		return "", false
	}
}
