package orchestration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/alerting"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/orchestration"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/reconcile"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/storage"
)

type MockBucketManager struct{ mock.Mock }

func (m *MockBucketManager) ReconcileAll(ctx context.Context, specs []storage.BucketSpec, dryRun bool) ([]*storage.BucketResult, error) {
	args := m.Called(ctx, specs, dryRun)
	results, _ := args.Get(0).([]*storage.BucketResult)
	return results, args.Error(1)
}

type MockAlertPolicyManager struct{ mock.Mock }

func (m *MockAlertPolicyManager) ReconcileAll(ctx context.Context, specs []alerting.AlertPolicySpec, dryRun bool) ([]*alerting.AlertPolicyResult, error) {
	args := m.Called(ctx, specs, dryRun)
	results, _ := args.Get(0).([]*alerting.AlertPolicyResult)
	return results, args.Error(1)
}

func testDocument() *config.Document {
	return &config.Document{
		Environment:   config.Environment{Name: "test", ProjectID: "test-project"},
		Buckets:       []storage.BucketSpec{{Name: "bucket-a"}},
		AlertPolicies: []alerting.AlertPolicySpec{{ID: "1"}},
	}
}

func bucketResult(name string, changed bool) *storage.BucketResult {
	return &storage.BucketResult{
		Name:    name,
		Changed: changed,
		State:   storage.StatePresent,
		Changes: storage.BucketChanges{
			ACL:        reconcile.NoChange[reconcile.ACLEntry](),
			DefaultACL: reconcile.NoChange[reconcile.ACLEntry](),
			IAMPolicy:  reconcile.NoChange[reconcile.IAMBinding](),
		},
	}
}

func TestConductor_Run(t *testing.T) {
	ctx := context.Background()
	doc := testDocument()

	buckets := new(MockBucketManager)
	buckets.On("ReconcileAll", ctx, doc.Buckets, true).Return([]*storage.BucketResult{bucketResult("bucket-a", true)}, nil).Once()
	alerts := new(MockAlertPolicyManager)
	alerts.On("ReconcileAll", ctx, doc.AlertPolicies, true).Return([]*alerting.AlertPolicyResult{{Name: "p", Changed: false}}, nil).Once()

	report, err := orchestration.NewConductor(buckets, alerts, zerolog.Nop()).Run(ctx, doc, true)
	require.NoError(t, err)

	assert.True(t, report.Changed, "changed is the OR over every result")
	assert.True(t, report.CheckMode)
	assert.Equal(t, "test", report.Environment)
	assert.Len(t, report.Buckets, 1)
	assert.Len(t, report.AlertPolicies, 1)
	assert.Empty(t, report.Errors)
	buckets.AssertExpectations(t)
	alerts.AssertExpectations(t)
}

func TestConductor_Run_PartialFailure(t *testing.T) {
	ctx := context.Background()
	doc := testDocument()

	buckets := new(MockBucketManager)
	buckets.On("ReconcileAll", ctx, doc.Buckets, false).Return([]*storage.BucketResult{nil}, errors.New("bucket exploded"))
	alerts := new(MockAlertPolicyManager)
	alerts.On("ReconcileAll", ctx, doc.AlertPolicies, false).Return([]*alerting.AlertPolicyResult{{Name: "p", Changed: true}}, nil)

	report, err := orchestration.NewConductor(buckets, alerts, zerolog.Nop()).Run(ctx, doc, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket exploded")

	require.NotNil(t, report)
	assert.True(t, report.Changed, "the alert category still ran and changed")
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "buckets")
}

func TestConductor_Run_SkipsEmptyCategories(t *testing.T) {
	ctx := context.Background()
	doc := &config.Document{Environment: config.Environment{Name: "test"}, Buckets: []storage.BucketSpec{{Name: "bucket-a"}}}

	buckets := new(MockBucketManager)
	buckets.On("ReconcileAll", ctx, doc.Buckets, false).Return([]*storage.BucketResult{bucketResult("bucket-a", false)}, nil)

	report, err := orchestration.NewConductor(buckets, nil, zerolog.Nop()).Run(ctx, doc, false)
	require.NoError(t, err)
	assert.False(t, report.Changed)
	assert.NotNil(t, report.AlertPolicies)
	assert.Empty(t, report.AlertPolicies)
}

func TestConductor_Run_MissingManager(t *testing.T) {
	_, err := orchestration.NewConductor(nil, nil, zerolog.Nop()).Run(context.Background(), testDocument(), false)
	assert.Error(t, err)
}

func sampleReport() *orchestration.Report {
	return &orchestration.Report{
		Environment:   "test",
		Changed:       true,
		Buckets:       []*storage.BucketResult{bucketResult("bucket-a", true)},
		AlertPolicies: []*alerting.AlertPolicyResult{},
	}
}

func TestReportWriter_YAML(t *testing.T) {
	var buf bytes.Buffer
	rw, err := orchestration.NewReportWriter(&buf, config.OutputYAML)
	require.NoError(t, err)
	require.NoError(t, rw.Write(context.Background(), sampleReport()))
	require.NoError(t, rw.Close())

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["changed"])
	assert.Contains(t, buf.String(), "name: bucket-a")
	assert.Contains(t, buf.String(), "added: []", "empty diffs render as empty lists")
}

func TestReportWriter_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rw, err := orchestration.NewFileReportWriter(path, config.OutputJSON)
	require.NoError(t, err)
	require.NoError(t, rw.Write(context.Background(), sampleReport()))
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded orchestration.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "test", decoded.Environment)
	require.Len(t, decoded.Buckets, 1)
	assert.Equal(t, "bucket-a", decoded.Buckets[0].Name)
}

func TestReportWriter_UnknownFormat(t *testing.T) {
	_, err := orchestration.NewReportWriter(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}
