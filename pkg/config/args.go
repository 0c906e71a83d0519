package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/alerting"
	"github.com/illmade-knight/go-cloud-reconciler/pkg/storage"
)

// ParseBucketArgs decodes a single bucket spec given inline, as the bucket
// subcommand receives it. Defaults are applied by the manager.
func ParseBucketArgs(data []byte) (storage.BucketSpec, error) {
	var spec storage.BucketSpec
	if err := decodeStrict(data, &spec); err != nil {
		return storage.BucketSpec{}, fmt.Errorf("failed to parse bucket arguments: %w", err)
	}
	return spec, nil
}

// ParseAlertPolicyArgs decodes a single alert policy spec given inline.
func ParseAlertPolicyArgs(data []byte) (alerting.AlertPolicySpec, error) {
	var spec alerting.AlertPolicySpec
	if err := decodeStrict(data, &spec); err != nil {
		return alerting.AlertPolicySpec{}, fmt.Errorf("failed to parse alert policy arguments: %w", err)
	}
	return spec, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
