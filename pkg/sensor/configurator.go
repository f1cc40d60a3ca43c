package sensor

import "errors"

var ErrNothingChanged = errors.New("sensor: configuration unchanged")

// ConfigBuilder object that is used to build a sensor configuration.
// It is possible to reconfigure only one parameter, only the pages holding
// changed values are synced with the device.
type ConfigBuilder struct {
	sensor *Sensor
	staged Settings
}

// NewConfigBuilder constructs ConfigBuilder
func NewConfigBuilder(s *Sensor) *ConfigBuilder {
	return &ConfigBuilder{
		sensor: s,
		staged: s.Settings(), // copy current values
	}
}

// ReportInterval set heartbeat in seconds
func (obj *ConfigBuilder) ReportInterval(seconds uint16) *ConfigBuilder {
	obj.staged.ReportInterval = seconds
	return obj
}

// LinkInterval set missed reports before relink
func (obj *ConfigBuilder) LinkInterval(reports uint8) *ConfigBuilder {
	obj.staged.LinkInterval = reports
	return obj
}

func (obj *ConfigBuilder) RetryCount(count uint8) *ConfigBuilder {
	obj.staged.RetryCount = count
	return obj
}

func (obj *ConfigBuilder) Recovery(count uint8) *ConfigBuilder {
	obj.staged.Recovery = count
	return obj
}

// Settings replaces all staged values
func (obj *ConfigBuilder) Settings(settings Settings) *ConfigBuilder {
	obj.staged = settings
	return obj
}

// Apply writes the staged values to the sensor record
func (obj *ConfigBuilder) Apply() error {
	current := obj.sensor.Settings()
	if current == obj.staged {
		return ErrNothingChanged
	}
	if current.ReportInterval != obj.staged.ReportInterval {
		obj.sensor.SetReportInterval(obj.staged.ReportInterval)
	}
	if current.LinkInterval != obj.staged.LinkInterval {
		obj.sensor.SetLinkInterval(obj.staged.LinkInterval)
	}
	if current.RetryCount != obj.staged.RetryCount {
		obj.sensor.SetRetryCount(obj.staged.RetryCount)
	}
	if current.Recovery != obj.staged.Recovery {
		obj.sensor.SetRecovery(obj.staged.Recovery)
	}
	return nil
}
