package alerting

import (
	"testing"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
)

func TestParseAlertPolicyName(t *testing.T) {
	n, err := ParseAlertPolicyName("projects/p-1/alertPolicies/42")
	require.NoError(t, err)
	assert.Equal(t, AlertName{ProjectID: "p-1", AlertID: "42"}, n)
	assert.Equal(t, "projects/p-1/alertPolicies/42", n.String())

	for _, bad := range []string{"", "projects/p-1", "projects/p-1/alertPolicies/", "projects/p/alertPolicies/1/conditions/2"} {
		_, err := ParseAlertPolicyName(bad)
		assert.ErrorIs(t, err, reconcile.ErrValidation, bad)
	}
}

func TestResourceName(t *testing.T) {
	name, err := AlertPolicySpec{ID: "9", Name: "projects/other/alertPolicies/1"}.ResourceName("mine")
	require.NoError(t, err)
	assert.Equal(t, "projects/mine/alertPolicies/9", name, "id takes precedence over name")

	name, err = AlertPolicySpec{}.ResourceName("mine")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = AlertPolicySpec{ID: "9"}.ResourceName("")
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

func TestBuildDesired_KeepsUnmanagedFields(t *testing.T) {
	current := &monitoringpb.AlertPolicy{
		Name:        "projects/p/alertPolicies/1",
		DisplayName: "old",
		UserLabels:  map[string]string{"team": "ops"},
		Enabled:     wrapperspb.Bool(false),
	}
	desired, paths, err := buildDesired(current, AlertPolicySpec{DisplayName: new(string)}, current.Name)
	require.NoError(t, err)

	assert.Equal(t, []string{"display_name"}, paths)
	assert.Equal(t, "", desired.GetDisplayName())
	assert.Equal(t, map[string]string{"team": "ops"}, desired.GetUserLabels())
	assert.False(t, desired.GetEnabled().GetValue(), "existing policies keep their enabled flag")
	assert.Equal(t, "old", current.GetDisplayName(), "current must not be mutated")
}

func TestBuildDesired_EmptyListsClear(t *testing.T) {
	current := &monitoringpb.AlertPolicy{NotificationChannels: []string{"c1"}, UserLabels: map[string]string{"a": "b"}}
	desired, paths, err := buildDesired(current, AlertPolicySpec{NotificationChannels: []string{}, UserLabels: map[string]string{}}, "")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"user_labels", "notification_channels"}, paths)
	assert.Equal(t, []string{"user_labels", "notification_channels"}, changedFields(current, desired, paths))
}

func TestBuildDesired_NewPolicyDefaultsEnabled(t *testing.T) {
	desired, paths, err := buildDesired(nil, AlertPolicySpec{}, "")
	require.NoError(t, err)
	assert.True(t, desired.GetEnabled().GetValue())
	assert.Equal(t, []string{"enabled"}, paths)
}

func TestChangedFields(t *testing.T) {
	a := &monitoringpb.AlertPolicy{DisplayName: "x", Combiner: monitoringpb.AlertPolicy_AND}
	b := &monitoringpb.AlertPolicy{DisplayName: "x", Combiner: monitoringpb.AlertPolicy_OR}
	assert.Equal(t, []string{"combiner"}, changedFields(a, b, []string{"display_name", "combiner", "no_such_field"}))
	assert.Empty(t, changedFields(a, a, []string{"display_name", "combiner"}))
}

func TestConditionSet_IgnoresServerNames(t *testing.T) {
	named := &monitoringpb.AlertPolicy{Conditions: []*monitoringpb.AlertPolicy_Condition{{Name: "srv/1", DisplayName: "c"}}}
	unnamed := &monitoringpb.AlertPolicy{Conditions: []*monitoringpb.AlertPolicy_Condition{{DisplayName: "c"}}}
	assert.True(t, conditionSet(named).Equal(conditionSet(unnamed)))
}
