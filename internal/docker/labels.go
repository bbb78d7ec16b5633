package docker

import (
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/filters"
)

// Label schema shared with stacks started by previous gateway processes.
const (
	LabelManaged      = "cqa"
	LabelStackName    = "cqa.stack_name"
	LabelStackVersion = "cqa.stack_version"
	LabelProxyBridge  = "cqa.proxy_bridge"
)

func StackLabels(stackName, version string) map[string]string {
	return map[string]string{
		LabelManaged:      "true",
		LabelStackName:    stackName,
		LabelStackVersion: version,
	}
}

func ContainerName(buildID string) string {
	return "cqa." + buildID
}

func NetworkName(containerID string) string {
	return "proxy_to_" + containerID
}

func labelFilters(labels map[string]string, extra ...filters.KeyValuePair) filters.Args {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := filters.NewArgs(extra...)
	for _, key := range keys {
		args.Add("label", fmt.Sprintf("%s=%s", key, labels[key]))
	}
	return args
}

func managedFilters(extra ...filters.KeyValuePair) filters.Args {
	return labelFilters(map[string]string{LabelManaged: "true"}, extra...)
}

func statusFilters(statuses []string) []filters.KeyValuePair {
	pairs := make([]filters.KeyValuePair, 0, len(statuses))
	for _, status := range statuses {
		pairs = append(pairs, filters.Arg("status", status))
	}
	return pairs
}
