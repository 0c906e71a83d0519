package prerequisites

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
)

const (
	StorageAPI    = "storage.googleapis.com"
	MonitoringAPI = "monitoring.googleapis.com"
)

// PlanRequiredServices returns the sorted API hostnames a document's
// resources need.
func PlanRequiredServices(doc *config.Document) []string {
	required := mapset.NewSet[string]()
	if len(doc.Buckets) > 0 {
		required.Add(StorageAPI)
	}
	if len(doc.AlertPolicies) > 0 {
		required.Add(MonitoringAPI)
	}
	apis := required.ToSlice()
	slices.Sort(apis)
	return apis
}
