package wire

import "fmt"

// MessageID is the kind tag carried in every frame header.
type MessageID uint32

// Phone to server.
const (
	KeepAliveMessage              MessageID = 0x0000
	RegisterMessage               MessageID = 0x0001
	IpPortMessage                 MessageID = 0x0002
	KeypadButtonMessage           MessageID = 0x0003
	EnblocCallMessage             MessageID = 0x0004
	StimulusMessage               MessageID = 0x0005
	OffHookMessage                MessageID = 0x0006
	OnHookMessage                 MessageID = 0x0007
	ForwardStatReqMessage         MessageID = 0x0009
	SpeedDialStatReqMessage       MessageID = 0x000A
	LineStatReqMessage            MessageID = 0x000B
	ConfigStatReqMessage          MessageID = 0x000C
	TimeDateReqMessage            MessageID = 0x000D
	ButtonTemplateReqMessage      MessageID = 0x000E
	VersionReqMessage             MessageID = 0x000F
	CapabilitiesResMessage        MessageID = 0x0010
	ServerReqMessage              MessageID = 0x0012
	AlarmMessage                  MessageID = 0x0020
	OpenReceiveChannelAckMessage  MessageID = 0x0022
	SoftKeySetReqMessage          MessageID = 0x0025
	SoftKeyEventMessage           MessageID = 0x0026
	UnregisterMessage             MessageID = 0x0027
	SoftKeyTemplateReqMessage     MessageID = 0x0028
	RegisterTokenReqMessage       MessageID = 0x0029
	HeadsetStatusMessage          MessageID = 0x002B
	RegisterAvailableLinesMessage MessageID = 0x002D
	ServiceURLStatReqMessage      MessageID = 0x0033
	FeatureStatReqMessage         MessageID = 0x0034
)

// Server to phone.
const (
	RegisterAckMessage         MessageID = 0x0081
	StartToneMessage           MessageID = 0x0082
	StopToneMessage            MessageID = 0x0083
	SetRingerMessage           MessageID = 0x0085
	SetLampMessage             MessageID = 0x0086
	SetSpeakerModeMessage      MessageID = 0x0088
	CallInfoMessage            MessageID = 0x008F
	ForwardStatMessage         MessageID = 0x0090
	SpeedDialStatMessage       MessageID = 0x0091
	LineStatMessage            MessageID = 0x0092
	ConfigStatMessage          MessageID = 0x0093
	DefineTimeDateMessage      MessageID = 0x0094
	ButtonTemplateMessage      MessageID = 0x0097
	VersionMessage             MessageID = 0x0098
	CapabilitiesReqMessage     MessageID = 0x009B
	RegisterRejectMessage      MessageID = 0x009D
	ServerResMessage           MessageID = 0x009E
	KeepAliveAckMessage        MessageID = 0x0100
	SoftKeyTemplateResMessage  MessageID = 0x0108
	SoftKeySetResMessage       MessageID = 0x0109
	SelectSoftKeysMessage      MessageID = 0x0110
	CallStateMessage           MessageID = 0x0111
	DisplayPromptStatusMessage MessageID = 0x0112
	ClearPromptStatusMessage   MessageID = 0x0113
	DisplayNotifyMessage       MessageID = 0x0114
	ActivateCallPlaneMessage   MessageID = 0x0116
	UnregisterAckMessage       MessageID = 0x0118
	RegisterTokenAckMessage    MessageID = 0x0144
)

var names = map[MessageID]string{
	KeepAliveMessage:              "KeepAlive",
	RegisterMessage:               "Register",
	IpPortMessage:                 "IpPort",
	KeypadButtonMessage:           "KeypadButton",
	EnblocCallMessage:             "EnblocCall",
	StimulusMessage:               "Stimulus",
	OffHookMessage:                "OffHook",
	OnHookMessage:                 "OnHook",
	ForwardStatReqMessage:         "ForwardStatReq",
	SpeedDialStatReqMessage:       "SpeedDialStatReq",
	LineStatReqMessage:            "LineStatReq",
	ConfigStatReqMessage:          "ConfigStatReq",
	TimeDateReqMessage:            "TimeDateReq",
	ButtonTemplateReqMessage:      "ButtonTemplateReq",
	VersionReqMessage:             "VersionReq",
	CapabilitiesResMessage:        "CapabilitiesRes",
	ServerReqMessage:              "ServerReq",
	AlarmMessage:                  "Alarm",
	OpenReceiveChannelAckMessage:  "OpenReceiveChannelAck",
	SoftKeySetReqMessage:          "SoftKeySetReq",
	SoftKeyEventMessage:           "SoftKeyEvent",
	UnregisterMessage:             "Unregister",
	SoftKeyTemplateReqMessage:     "SoftKeyTemplateReq",
	RegisterTokenReqMessage:       "RegisterTokenReq",
	HeadsetStatusMessage:          "HeadsetStatus",
	RegisterAvailableLinesMessage: "RegisterAvailableLines",
	ServiceURLStatReqMessage:      "ServiceURLStatReq",
	FeatureStatReqMessage:         "FeatureStatReq",
	RegisterAckMessage:            "RegisterAck",
	StartToneMessage:              "StartTone",
	StopToneMessage:               "StopTone",
	SetRingerMessage:              "SetRinger",
	SetLampMessage:                "SetLamp",
	SetSpeakerModeMessage:         "SetSpeakerMode",
	CallInfoMessage:               "CallInfo",
	ForwardStatMessage:            "ForwardStat",
	SpeedDialStatMessage:          "SpeedDialStat",
	LineStatMessage:               "LineStat",
	ConfigStatMessage:             "ConfigStat",
	DefineTimeDateMessage:         "DefineTimeDate",
	ButtonTemplateMessage:         "ButtonTemplate",
	VersionMessage:                "Version",
	CapabilitiesReqMessage:        "CapabilitiesReq",
	RegisterRejectMessage:         "RegisterReject",
	ServerResMessage:              "ServerRes",
	KeepAliveAckMessage:           "KeepAliveAck",
	SoftKeyTemplateResMessage:     "SoftKeyTemplateRes",
	SoftKeySetResMessage:          "SoftKeySetRes",
	SelectSoftKeysMessage:         "SelectSoftKeys",
	CallStateMessage:              "CallState",
	DisplayPromptStatusMessage:    "DisplayPromptStatus",
	ClearPromptStatusMessage:      "ClearPromptStatus",
	DisplayNotifyMessage:          "DisplayNotify",
	ActivateCallPlaneMessage:      "ActivateCallPlane",
	UnregisterAckMessage:          "UnregisterAck",
	RegisterTokenAckMessage:       "RegisterTokenAck",
}

func (id MessageID) String() string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(0x%04X)", uint32(id))
}

// Known reports whether id has a payload layout in this package.
func (id MessageID) Known() bool {
	_, ok := kinds[id]
	return ok
}

var kinds = map[MessageID]func() payload{
	KeepAliveMessage:              func() payload { return &KeepAlive{} },
	RegisterMessage:               func() payload { return &Register{} },
	IpPortMessage:                 func() payload { return &IpPort{} },
	KeypadButtonMessage:           func() payload { return &KeypadButton{} },
	EnblocCallMessage:             func() payload { return &EnblocCall{} },
	StimulusMessage:               func() payload { return &Stimulus{} },
	OffHookMessage:                func() payload { return &OffHook{} },
	OnHookMessage:                 func() payload { return &OnHook{} },
	ForwardStatReqMessage:         func() payload { return &ForwardStatReq{} },
	SpeedDialStatReqMessage:       func() payload { return &SpeedDialStatReq{} },
	LineStatReqMessage:            func() payload { return &LineStatReq{} },
	ConfigStatReqMessage:          func() payload { return &ConfigStatReq{} },
	TimeDateReqMessage:            func() payload { return &TimeDateReq{} },
	ButtonTemplateReqMessage:      func() payload { return &ButtonTemplateReq{} },
	VersionReqMessage:             func() payload { return &VersionReq{} },
	CapabilitiesResMessage:        func() payload { return &CapabilitiesRes{} },
	ServerReqMessage:              func() payload { return &ServerReq{} },
	AlarmMessage:                  func() payload { return &Alarm{} },
	OpenReceiveChannelAckMessage:  func() payload { return &OpenReceiveChannelAck{} },
	SoftKeySetReqMessage:          func() payload { return &SoftKeySetReq{} },
	SoftKeyEventMessage:           func() payload { return &SoftKeyEvent{} },
	UnregisterMessage:             func() payload { return &Unregister{} },
	SoftKeyTemplateReqMessage:     func() payload { return &SoftKeyTemplateReq{} },
	RegisterTokenReqMessage:       func() payload { return &RegisterTokenReq{} },
	HeadsetStatusMessage:          func() payload { return &HeadsetStatus{} },
	RegisterAvailableLinesMessage: func() payload { return &RegisterAvailableLines{} },
	ServiceURLStatReqMessage:      func() payload { return &ServiceURLStatReq{} },
	FeatureStatReqMessage:         func() payload { return &FeatureStatReq{} },
	RegisterAckMessage:            func() payload { return &RegisterAck{} },
	StartToneMessage:              func() payload { return &StartTone{} },
	StopToneMessage:               func() payload { return &StopTone{} },
	SetRingerMessage:              func() payload { return &SetRinger{} },
	SetLampMessage:                func() payload { return &SetLamp{} },
	SetSpeakerModeMessage:         func() payload { return &SetSpeakerMode{} },
	CallInfoMessage:               func() payload { return &CallInfo{} },
	ForwardStatMessage:            func() payload { return &ForwardStat{} },
	SpeedDialStatMessage:          func() payload { return &SpeedDialStat{} },
	LineStatMessage:               func() payload { return &LineStat{} },
	ConfigStatMessage:             func() payload { return &ConfigStat{} },
	DefineTimeDateMessage:         func() payload { return &DefineTimeDate{} },
	ButtonTemplateMessage:         func() payload { return &ButtonTemplate{} },
	VersionMessage:                func() payload { return &Version{} },
	CapabilitiesReqMessage:        func() payload { return &CapabilitiesReq{} },
	RegisterRejectMessage:         func() payload { return &RegisterReject{} },
	ServerResMessage:              func() payload { return &ServerRes{} },
	KeepAliveAckMessage:           func() payload { return &KeepAliveAck{} },
	SoftKeyTemplateResMessage:     func() payload { return &SoftKeyTemplateRes{} },
	SoftKeySetResMessage:          func() payload { return &SoftKeySetRes{} },
	SelectSoftKeysMessage:         func() payload { return &SelectSoftKeys{} },
	CallStateMessage:              func() payload { return &CallState{} },
	DisplayPromptStatusMessage:    func() payload { return &DisplayPromptStatus{} },
	ClearPromptStatusMessage:      func() payload { return &ClearPromptStatus{} },
	DisplayNotifyMessage:          func() payload { return &DisplayNotify{} },
	ActivateCallPlaneMessage:      func() payload { return &ActivateCallPlane{} },
	UnregisterAckMessage:          func() payload { return &UnregisterAck{} },
	RegisterTokenAckMessage:       func() payload { return &RegisterTokenAck{} },
}
