// Package event holds the payload codecs for individual bus events and the
// registry that maps an object type tag to an empty codec.
package event

import (
	"github.com/gftdcojp/buslog/internal/block"
	"github.com/gftdcojp/buslog/internal/object"
	"go.uber.org/zap"
)

var _ object.Factory = New

// New returns an empty payload for t, or nil for reserved and unknown tags.
// Several tags share one codec; the tag itself lives in the object header.
func New(t object.Type) object.Payload {
	switch t {
	case object.TypeCANMessage:
		return &CANMessage{}
	case object.TypeCANOverload:
		return &CANOverloadFrame{}
	case object.TypeEnvInteger, object.TypeEnvDouble, object.TypeEnvString, object.TypeEnvData:
		return &EnvironmentVariable{}
	case object.TypeLogContainer:
		return &block.LogContainer{}
	case object.TypeMOSTPkt:
		return &MOSTPkt{}
	case object.TypeAppText:
		return &AppText{}
	case object.TypeSysVariable:
		return &SystemVariable{}
	case object.TypeMOSTEthernetPkt:
		return &MOSTEthernetPkt{}
	case object.TypeCANMessage2:
		return &CANMessage2{}
	case object.TypeEventComment:
		return &EventComment{}
	case object.TypeRestorePointContainer:
		return &RestorePointContainer{}
	case object.TypeEthernetFrameEx:
		return &EthernetFrameEx{}
	case object.TypeDataLostBegin:
		return &DataLostBegin{}
	case object.TypeDataLostEnd:
		return &DataLostEnd{}
	}
	if t.Known() {
		return &Raw{}
	}
	return nil
}

// NewDecoder returns an object decoder backed by the registry.
func NewDecoder(logger *zap.Logger) *object.Decoder {
	return object.NewDecoder(New, logger)
}
