package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles. A flag can be switched on for every
// cohort, for an explicit list of cohorts, or for a percentage of cohorts
// chosen by a stable hash of the cohort ID.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Share of cohorts (0-100) that get the feature.
	RolloutPercent int

	// Cohort IDs the feature is limited to. Empty means all cohorts.
	TargetCohorts []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	CohortID string
}

// Known feature flags.
const (
	// Serve cohort read models from the report cache.
	FeatureStatsCache = "stats_cache"

	// Reject re-imports of an identical CSV payload for the same cohort.
	FeatureImportFingerprint = "import_fingerprint"

	// Include weekends in generated templates by default.
	FeatureWeekendTemplate = "weekend_template"
)

// LoadFeatureFlags loads feature flags with defaults and env overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureStatsCache] = &Feature{
		Name:           FeatureStatsCache,
		Description:    "Cache cohort attendance reports in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureImportFingerprint] = &Feature{
		Name:           FeatureImportFingerprint,
		Description:    "Skip CSV imports that were already applied",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureWeekendTemplate] = &Feature{
		Name:        FeatureWeekendTemplate,
		Description: "Generate template rows for weekends too",
	}
}

// loadFromEnvironment applies overrides of the form
// FEATURE_<NAME>=true|false|<percent>, e.g. FEATURE_STATS_CACHE=false.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// "stats_cache" -> "FEATURE_STATS_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context. A nil
// context only checks the global switch.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if ctx == nil || ctx.CohortID == "" {
		return feature.RolloutPercent > 0
	}

	if len(feature.TargetCohorts) > 0 {
		matched := false
		for _, c := range feature.TargetCohorts {
			if c == ctx.CohortID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if feature.RolloutPercent < 100 {
		return isInRollout(ctx.CohortID, featureName, feature.RolloutPercent)
	}
	return true
}

// isInRollout buckets a cohort by hash so it stays in the same bucket.
func isInRollout(cohortID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(cohortID))
	return int(h.Sum32()%100) < percent
}

// Set switches a feature fully on or off.
func (ff *FeatureFlags) Set(featureName string, enabled bool) error {
	percent := 0
	if enabled {
		percent = 100
	}
	return ff.SetRolloutPercent(featureName, percent)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// SetTargetCohorts limits a feature to the given cohorts.
func (ff *FeatureFlags) SetTargetCohorts(featureName string, cohorts ...string) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.TargetCohorts = append([]string(nil), cohorts...)
	return nil
}

// Names returns the known feature names, sorted.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
