package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	mapset "github.com/deckarep/golang-set/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

// State is the state an AlertPolicySpec asks for.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// documentationMimeType is the only mime type Cloud Monitoring accepts for
// policy documentation.
const documentationMimeType = "text/markdown"

var alertNameRegex = regexp.MustCompile(`^projects/([^/]+)/alertPolicies/([^/]+)$`)

// AlertName is a parsed alert policy resource name.
type AlertName struct {
	ProjectID string
	AlertID   string
}

// String returns the full resource name.
func (n AlertName) String() string {
	return fmt.Sprintf("projects/%s/alertPolicies/%s", n.ProjectID, n.AlertID)
}

// ParseAlertPolicyName splits "projects/<project>/alertPolicies/<id>".
func ParseAlertPolicyName(name string) (AlertName, error) {
	m := alertNameRegex.FindStringSubmatch(name)
	if m == nil {
		return AlertName{}, fmt.Errorf("%w: '%s' did not match alert name pattern %s", reconcile.ErrValidation, name, alertNameRegex)
	}
	return AlertName{ProjectID: m[1], AlertID: m[2]}, nil
}

// AlertPolicySpec declares the desired state of one alert policy. Fields left
// nil are not managed: the remote value is kept as it is.
type AlertPolicySpec struct {
	// Name is the full resource name. ID is a shorthand resolved against the
	// manager's project and takes precedence over Name.
	Name  string `yaml:"name,omitempty"`
	ID    string `yaml:"id,omitempty"`
	State State  `yaml:"state,omitempty"`

	DisplayName   *string           `yaml:"display_name,omitempty"`
	Documentation *string           `yaml:"documentation,omitempty"`
	UserLabels    map[string]string `yaml:"user_labels,omitempty"`
	// Conditions are given in the API's JSON form, e.g.
	// {displayName: ..., conditionThreshold: {filter: ..., comparison: COMPARISON_GT}}.
	Conditions           []map[string]any `yaml:"conditions,omitempty"`
	Combiner             string           `yaml:"combiner,omitempty"`
	Enabled              *bool            `yaml:"enabled,omitempty"`
	NotificationChannels []string         `yaml:"notification_channels,omitempty"`
}

// WithDefaults fills unset fields.
func (s AlertPolicySpec) WithDefaults() AlertPolicySpec {
	if s.State == "" {
		s.State = StatePresent
	}
	return s
}

// ResourceName resolves the policy's full name. It is empty when the spec
// names no existing policy, which is how a new policy is declared.
func (s AlertPolicySpec) ResourceName(projectID string) (string, error) {
	if s.ID != "" {
		if projectID == "" {
			return "", fmt.Errorf("%w: a project is required to resolve alert policy id '%s'", reconcile.ErrValidation, s.ID)
		}
		return AlertName{ProjectID: projectID, AlertID: s.ID}.String(), nil
	}
	if s.Name == "" {
		return "", nil
	}
	if _, err := ParseAlertPolicyName(s.Name); err != nil {
		return "", err
	}
	return s.Name, nil
}

// Validate checks the parts of the spec that do not need the remote policy.
// Condition bodies are only checked for being well-formed API JSON.
func (s AlertPolicySpec) Validate() error {
	var errs []error
	switch s.State {
	case StatePresent, StateAbsent:
	default:
		errs = append(errs, fmt.Errorf("%w: unexpected state '%s'", reconcile.ErrValidation, s.State))
	}
	if s.Combiner != "" {
		if _, ok := monitoringpb.AlertPolicy_ConditionCombinerType_value[s.Combiner]; !ok {
			errs = append(errs, fmt.Errorf("%w: unknown combiner '%s'", reconcile.ErrValidation, s.Combiner))
		}
	}
	if _, err := parseConditions(s.Conditions); err != nil {
		errs = append(errs, err)
	}
	for i, ch := range s.NotificationChannels {
		if ch == "" {
			errs = append(errs, fmt.Errorf("%w: notification channel %d is empty", reconcile.ErrValidation, i))
		}
	}
	return errors.Join(errs...)
}

func parseConditions(raw []map[string]any) ([]*monitoringpb.AlertPolicy_Condition, error) {
	if raw == nil {
		return nil, nil
	}
	conditions := make([]*monitoringpb.AlertPolicy_Condition, 0, len(raw))
	for i, doc := range raw {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d: %v", reconcile.ErrValidation, i, err)
		}
		cond := &monitoringpb.AlertPolicy_Condition{}
		if err := protojson.Unmarshal(b, cond); err != nil {
			return nil, fmt.Errorf("%w: condition %d: %v", reconcile.ErrValidation, i, err)
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

// buildDesired overlays the managed fields of spec on a copy of current (or on
// an empty policy when current is nil) and returns the field paths the spec
// manages.
func buildDesired(current *monitoringpb.AlertPolicy, spec AlertPolicySpec, name string) (*monitoringpb.AlertPolicy, []string, error) {
	desired := &monitoringpb.AlertPolicy{Name: name}
	if current != nil {
		desired = proto.Clone(current).(*monitoringpb.AlertPolicy)
	}

	var paths []string
	if spec.DisplayName != nil {
		desired.DisplayName = *spec.DisplayName
		paths = append(paths, "display_name")
	}
	if spec.Documentation != nil {
		desired.Documentation = &monitoringpb.AlertPolicy_Documentation{
			Content:  *spec.Documentation,
			MimeType: documentationMimeType,
		}
		paths = append(paths, "documentation")
	}
	if spec.UserLabels != nil {
		desired.UserLabels = maps.Clone(spec.UserLabels)
		paths = append(paths, "user_labels")
	}
	if spec.Conditions != nil {
		conditions, err := parseConditions(spec.Conditions)
		if err != nil {
			return nil, nil, err
		}
		carryConditionNames(current, conditions)
		desired.Conditions = conditions
		paths = append(paths, "conditions")
	}
	if spec.Combiner != "" {
		desired.Combiner = monitoringpb.AlertPolicy_ConditionCombinerType(monitoringpb.AlertPolicy_ConditionCombinerType_value[spec.Combiner])
		paths = append(paths, "combiner")
	}
	switch {
	case spec.Enabled != nil:
		desired.Enabled = wrapperspb.Bool(*spec.Enabled)
		paths = append(paths, "enabled")
	case current == nil:
		// New policies are enabled unless the spec says otherwise.
		desired.Enabled = wrapperspb.Bool(true)
		paths = append(paths, "enabled")
	}
	if spec.NotificationChannels != nil {
		desired.NotificationChannels = append([]string{}, spec.NotificationChannels...)
		paths = append(paths, "notification_channels")
	}
	return desired, paths, nil
}

// carryConditionNames copies the server-assigned names of existing conditions
// onto declared conditions, so an unchanged condition compares equal. Each
// existing condition lends its name at most once: a declared condition first
// takes the name of an existing condition with the same body, then of an
// unused one with the same display name.
func carryConditionNames(current *monitoringpb.AlertPolicy, declared []*monitoringpb.AlertPolicy_Condition) {
	existing := current.GetConditions()
	if len(existing) == 0 {
		return
	}
	used := make([]bool, len(existing))
	claim := func(c *monitoringpb.AlertPolicy_Condition, match func(e *monitoringpb.AlertPolicy_Condition) bool) {
		for i, e := range existing {
			if !used[i] && e.GetName() != "" && match(e) {
				used[i] = true
				c.Name = e.GetName()
				return
			}
		}
	}

	// Names given explicitly in the declaration are never reassigned.
	for _, c := range declared {
		if c.Name == "" {
			continue
		}
		for i, e := range existing {
			if !used[i] && e.GetName() == c.Name {
				used[i] = true
			}
		}
	}
	for _, c := range declared {
		if c.Name == "" {
			digest := conditionDigest(c)
			claim(c, func(e *monitoringpb.AlertPolicy_Condition) bool { return conditionDigest(e) == digest })
		}
	}
	for _, c := range declared {
		if c.Name == "" {
			claim(c, func(e *monitoringpb.AlertPolicy_Condition) bool { return e.GetDisplayName() == c.GetDisplayName() })
		}
	}
}

// changedFields returns the subset of paths whose value differs between a and b.
func changedFields(a, b *monitoringpb.AlertPolicy, paths []string) []string {
	fields := a.ProtoReflect().Descriptor().Fields()
	var changed []string
	for _, path := range paths {
		fd := fields.ByName(protoreflect.Name(path))
		if fd == nil {
			continue
		}
		if !proto.Equal(onlyField(a, fd), onlyField(b, fd)) {
			changed = append(changed, path)
		}
	}
	return changed
}

func onlyField(p *monitoringpb.AlertPolicy, fd protoreflect.FieldDescriptor) proto.Message {
	out := &monitoringpb.AlertPolicy{}
	if p.ProtoReflect().Has(fd) {
		out.ProtoReflect().Set(fd, p.ProtoReflect().Get(fd))
	}
	return out
}

// ConditionEntry identifies a condition in a diff: a condition whose body
// changes shows up as removed with its old digest and added with its new one.
type ConditionEntry struct {
	DisplayName string `yaml:"display_name" json:"display_name"`
	Digest      string `yaml:"digest" json:"digest"`
}

// Key implements reconcile.Binding.
func (c ConditionEntry) Key() string { return c.DisplayName + "\x00" + c.Digest }

// NotificationChannel is a channel resource name in a diff.
type NotificationChannel string

// Key implements reconcile.Binding.
func (c NotificationChannel) Key() string { return string(c) }

func conditionSet(p *monitoringpb.AlertPolicy) mapset.Set[ConditionEntry] {
	out := mapset.NewSet[ConditionEntry]()
	for _, c := range p.GetConditions() {
		out.Add(ConditionEntry{DisplayName: c.GetDisplayName(), Digest: conditionDigest(c)})
	}
	return out
}

// conditionDigest is a short digest of a condition's body without its
// server-assigned name.
func conditionDigest(c *monitoringpb.AlertPolicy_Condition) string {
	body := proto.Clone(c).(*monitoringpb.AlertPolicy_Condition)
	body.Name = ""
	b, _ := proto.MarshalOptions{Deterministic: true}.Marshal(body)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

func channelSet(p *monitoringpb.AlertPolicy) mapset.Set[NotificationChannel] {
	out := mapset.NewSet[NotificationChannel]()
	for _, ch := range p.GetNotificationChannels() {
		out.Add(NotificationChannel(ch))
	}
	return out
}

// AlertPolicyChanges describes what a pass changed on one policy.
type AlertPolicyChanges struct {
	// Fields lists the top-level policy fields that were (or would be) written.
	Fields               []string                            `yaml:"fields" json:"fields"`
	Conditions           reconcile.Diff[ConditionEntry]      `yaml:"conditions" json:"conditions"`
	NotificationChannels reconcile.Diff[NotificationChannel] `yaml:"notification_channels" json:"notification_channels"`
}

// AlertPolicyResult is the outcome of reconciling one AlertPolicySpec.
type AlertPolicyResult struct {
	Name        string             `yaml:"name" json:"name"`
	Changed     bool               `yaml:"changed" json:"changed"`
	State       State              `yaml:"state" json:"state"`
	AlertPolicy map[string]any     `yaml:"alert_policy" json:"alert_policy"`
	Changes     AlertPolicyChanges `yaml:"changes" json:"changes"`
}

func newAlertPolicyResult(name string, state State) *AlertPolicyResult {
	return &AlertPolicyResult{
		Name:  name,
		State: state,
		Changes: AlertPolicyChanges{
			Fields:               []string{},
			Conditions:           reconcile.NoChange[ConditionEntry](),
			NotificationChannels: reconcile.NoChange[NotificationChannel](),
		},
	}
}

// renderPolicy converts a policy to its API JSON shape plus its short id.
func renderPolicy(p *monitoringpb.AlertPolicy) (map[string]any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := protojson.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to render alert policy: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to render alert policy: %w", err)
	}
	if n, err := ParseAlertPolicyName(p.GetName()); err == nil {
		out["id"] = n.AlertID
	}
	return out, nil
}
