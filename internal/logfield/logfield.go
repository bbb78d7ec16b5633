package lf

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldModule      = "module"
	FieldBuildID     = "build_id"
	FieldStepName    = "step"
	FieldProjectName = "project_name"
	FieldVersion     = "version"
	FieldHostname    = "hostname"
	FieldContainerID = "container_id"
	FieldNetworkID   = "network_id"
	FieldImageTag    = "image_tag"
	FieldBuildStatus = "build_status"
	FieldScope       = "scope"
	FieldDelay       = "delay"
)

func Module(module string) zap.Field {
	return zap.String(FieldModule, module)
}

func BuildID(ID string) zap.Field {
	return zap.String(FieldBuildID, ID)
}

func StepName(name string) zap.Field {
	return zap.String(FieldStepName, name)
}

func ProjectName(name string) zap.Field {
	return zap.String(FieldProjectName, name)
}

func Version(version string) zap.Field {
	return zap.String(FieldVersion, version)
}

func Hostname(hostname string) zap.Field {
	return zap.String(FieldHostname, hostname)
}

func ContainerID(ID string) zap.Field {
	return zap.String(FieldContainerID, ID)
}

func NetworkID(ID string) zap.Field {
	return zap.String(FieldNetworkID, ID)
}

func ImageTag(tag string) zap.Field {
	return zap.String(FieldImageTag, tag)
}

func BuildStatus(status string) zap.Field {
	return zap.String(FieldBuildStatus, status)
}

func Scope(scope string) zap.Field {
	return zap.String(FieldScope, scope)
}

func Delay(d time.Duration) zap.Field {
	return zap.Duration(FieldDelay, d)
}
