package wire

// Field widths shared by several kinds.
const (
	DeviceNameSize  = 16
	DirNumberSize   = 24
	DisplayNameSize = 40
	AlarmTextSize   = 80
	VersionSize     = 16
)

// maxCapabilities bounds the capability count read off the wire.
const maxCapabilities = 18

type KeepAlive struct{}

func (*KeepAlive) ID() MessageID  { return KeepAliveMessage }
func (*KeepAlive) decode(*reader) {}
func (*KeepAlive) encode(*writer) {}

// Register is the first message a phone sends on a new connection.
type Register struct {
	DeviceName      string
	UserID          uint32
	Instance        uint32
	StationIP       [4]byte
	DeviceType      uint32
	MaxStreams      uint32
	ActiveStreams   uint32
	ProtocolVersion uint8
}

func (*Register) ID() MessageID { return RegisterMessage }

func (m *Register) decode(r *reader) {
	m.DeviceName = r.str(DeviceNameSize)
	m.UserID = r.u32()
	m.Instance = r.u32()
	m.StationIP = r.ip4()
	m.DeviceType = r.u32()
	m.MaxStreams = r.u32()
	m.ActiveStreams = r.u32()
	m.ProtocolVersion = r.u8()
}

func (m *Register) encode(w *writer) {
	w.str(m.DeviceName, DeviceNameSize)
	w.u32(m.UserID)
	w.u32(m.Instance)
	w.ip4(m.StationIP)
	w.u32(m.DeviceType)
	w.u32(m.MaxStreams)
	w.u32(m.ActiveStreams)
	w.u8(m.ProtocolVersion)
	w.pad(3)
}

// RegisterTokenReq asks permission to register, sent by newer firmware
// before Register.
type RegisterTokenReq struct {
	DeviceName string
	UserID     uint32
	Instance   uint32
	StationIP  [4]byte
	DeviceType uint32
}

func (*RegisterTokenReq) ID() MessageID { return RegisterTokenReqMessage }

func (m *RegisterTokenReq) decode(r *reader) {
	m.DeviceName = r.str(DeviceNameSize)
	m.UserID = r.u32()
	m.Instance = r.u32()
	m.StationIP = r.ip4()
	m.DeviceType = r.u32()
}

func (m *RegisterTokenReq) encode(w *writer) {
	w.str(m.DeviceName, DeviceNameSize)
	w.u32(m.UserID)
	w.u32(m.Instance)
	w.ip4(m.StationIP)
	w.u32(m.DeviceType)
}

// IpPort reports the RTP port. Obsolete, kept for old phones.
type IpPort struct {
	RTPPort uint16
}

func (*IpPort) ID() MessageID      { return IpPortMessage }
func (m *IpPort) decode(r *reader) { m.RTPPort = r.u16() }
func (m *IpPort) encode(w *writer) { w.u16(m.RTPPort); w.pad(2) }

type KeypadButton struct {
	Button       uint32
	LineInstance uint32
	CallID       uint32
}

func (*KeypadButton) ID() MessageID { return KeypadButtonMessage }

func (m *KeypadButton) decode(r *reader) {
	m.Button = r.u32()
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *KeypadButton) encode(w *writer) {
	w.u32(m.Button)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

// EnblocCall carries a whole number dialed before going off hook.
type EnblocCall struct {
	Number string
}

func (*EnblocCall) ID() MessageID      { return EnblocCallMessage }
func (m *EnblocCall) decode(r *reader) { m.Number = r.str(DirNumberSize) }
func (m *EnblocCall) encode(w *writer) { w.str(m.Number, DirNumberSize) }

type Stimulus struct {
	Stimulus uint32
	Instance uint32
}

func (*Stimulus) ID() MessageID { return StimulusMessage }

func (m *Stimulus) decode(r *reader) {
	m.Stimulus = r.u32()
	m.Instance = r.u32()
}

func (m *Stimulus) encode(w *writer) {
	w.u32(m.Stimulus)
	w.u32(m.Instance)
}

type OffHook struct {
	LineInstance uint32
	CallID       uint32
}

func (*OffHook) ID() MessageID { return OffHookMessage }

func (m *OffHook) decode(r *reader) {
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *OffHook) encode(w *writer) {
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type OnHook struct {
	LineInstance uint32
	CallID       uint32
}

func (*OnHook) ID() MessageID { return OnHookMessage }

func (m *OnHook) decode(r *reader) {
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *OnHook) encode(w *writer) {
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type ForwardStatReq struct {
	LineNumber uint32
}

func (*ForwardStatReq) ID() MessageID      { return ForwardStatReqMessage }
func (m *ForwardStatReq) decode(r *reader) { m.LineNumber = r.u32() }
func (m *ForwardStatReq) encode(w *writer) { w.u32(m.LineNumber) }

type SpeedDialStatReq struct {
	Number uint32
}

func (*SpeedDialStatReq) ID() MessageID      { return SpeedDialStatReqMessage }
func (m *SpeedDialStatReq) decode(r *reader) { m.Number = r.u32() }
func (m *SpeedDialStatReq) encode(w *writer) { w.u32(m.Number) }

type LineStatReq struct {
	LineNumber uint32
}

func (*LineStatReq) ID() MessageID      { return LineStatReqMessage }
func (m *LineStatReq) decode(r *reader) { m.LineNumber = r.u32() }
func (m *LineStatReq) encode(w *writer) { w.u32(m.LineNumber) }

type ConfigStatReq struct{}

func (*ConfigStatReq) ID() MessageID  { return ConfigStatReqMessage }
func (*ConfigStatReq) decode(*reader) {}
func (*ConfigStatReq) encode(*writer) {}

type TimeDateReq struct{}

func (*TimeDateReq) ID() MessageID  { return TimeDateReqMessage }
func (*TimeDateReq) decode(*reader) {}
func (*TimeDateReq) encode(*writer) {}

type ButtonTemplateReq struct{}

func (*ButtonTemplateReq) ID() MessageID  { return ButtonTemplateReqMessage }
func (*ButtonTemplateReq) decode(*reader) {}
func (*ButtonTemplateReq) encode(*writer) {}

type VersionReq struct{}

func (*VersionReq) ID() MessageID  { return VersionReqMessage }
func (*VersionReq) decode(*reader) {}
func (*VersionReq) encode(*writer) {}

// Capability is one codec entry of a CapabilitiesRes.
type Capability struct {
	Codec              uint32
	MaxFramesPerPacket uint32
}

// CapabilitiesRes lists the codecs a phone supports. Each entry occupies 16
// bytes on the wire; the trailing 8 bytes carry codec-specific options the
// server does not use.
type CapabilitiesRes struct {
	Capabilities []Capability
}

func (*CapabilitiesRes) ID() MessageID { return CapabilitiesResMessage }

func (m *CapabilitiesRes) decode(r *reader) {
	n := int(r.u32())
	if n > maxCapabilities {
		n = maxCapabilities
	}
	for i := 0; i < n && r.remaining() >= 8; i++ {
		c := Capability{Codec: r.u32(), MaxFramesPerPacket: r.u32()}
		r.skip(8)
		m.Capabilities = append(m.Capabilities, c)
	}
}

func (m *CapabilitiesRes) encode(w *writer) {
	w.u32(uint32(len(m.Capabilities)))
	for _, c := range m.Capabilities {
		w.u32(c.Codec)
		w.u32(c.MaxFramesPerPacket)
		w.pad(8)
	}
}

type ServerReq struct{}

func (*ServerReq) ID() MessageID  { return ServerReqMessage }
func (*ServerReq) decode(*reader) {}
func (*ServerReq) encode(*writer) {}

type Alarm struct {
	Severity uint32
	Text     string
	Param1   uint32
	Param2   uint32
}

func (*Alarm) ID() MessageID { return AlarmMessage }

func (m *Alarm) decode(r *reader) {
	m.Severity = r.u32()
	m.Text = r.str(AlarmTextSize)
	m.Param1 = r.u32()
	m.Param2 = r.u32()
}

func (m *Alarm) encode(w *writer) {
	w.u32(m.Severity)
	w.str(m.Text, AlarmTextSize)
	w.u32(m.Param1)
	w.u32(m.Param2)
}

type OpenReceiveChannelAck struct {
	Status          uint32
	IP              [4]byte
	Port            uint32
	PassThruPartyID uint32
}

func (*OpenReceiveChannelAck) ID() MessageID { return OpenReceiveChannelAckMessage }

func (m *OpenReceiveChannelAck) decode(r *reader) {
	m.Status = r.u32()
	m.IP = r.ip4()
	m.Port = r.u32()
	m.PassThruPartyID = r.u32()
}

func (m *OpenReceiveChannelAck) encode(w *writer) {
	w.u32(m.Status)
	w.ip4(m.IP)
	w.u32(m.Port)
	w.u32(m.PassThruPartyID)
}

type SoftKeySetReq struct{}

func (*SoftKeySetReq) ID() MessageID  { return SoftKeySetReqMessage }
func (*SoftKeySetReq) decode(*reader) {}
func (*SoftKeySetReq) encode(*writer) {}

type SoftKeyEvent struct {
	Event        uint32
	LineInstance uint32
	CallID       uint32
}

func (*SoftKeyEvent) ID() MessageID { return SoftKeyEventMessage }

func (m *SoftKeyEvent) decode(r *reader) {
	m.Event = r.u32()
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *SoftKeyEvent) encode(w *writer) {
	w.u32(m.Event)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type Unregister struct{}

func (*Unregister) ID() MessageID  { return UnregisterMessage }
func (*Unregister) decode(*reader) {}
func (*Unregister) encode(*writer) {}

type SoftKeyTemplateReq struct{}

func (*SoftKeyTemplateReq) ID() MessageID  { return SoftKeyTemplateReqMessage }
func (*SoftKeyTemplateReq) decode(*reader) {}
func (*SoftKeyTemplateReq) encode(*writer) {}

type HeadsetStatus struct {
	Mode uint32
}

func (*HeadsetStatus) ID() MessageID      { return HeadsetStatusMessage }
func (m *HeadsetStatus) decode(r *reader) { m.Mode = r.u32() }
func (m *HeadsetStatus) encode(w *writer) { w.u32(m.Mode) }

// RegisterAvailableLines is the phone's signal that negotiation is done.
type RegisterAvailableLines struct {
	MaxLines uint32
}

func (*RegisterAvailableLines) ID() MessageID      { return RegisterAvailableLinesMessage }
func (m *RegisterAvailableLines) decode(r *reader) { m.MaxLines = r.u32() }
func (m *RegisterAvailableLines) encode(w *writer) { w.u32(m.MaxLines) }

type ServiceURLStatReq struct {
	Index uint32
}

func (*ServiceURLStatReq) ID() MessageID      { return ServiceURLStatReqMessage }
func (m *ServiceURLStatReq) decode(r *reader) { m.Index = r.u32() }
func (m *ServiceURLStatReq) encode(w *writer) { w.u32(m.Index) }

type FeatureStatReq struct {
	Index uint32
}

func (*FeatureStatReq) ID() MessageID      { return FeatureStatReqMessage }
func (m *FeatureStatReq) decode(r *reader) { m.Index = r.u32() }
func (m *FeatureStatReq) encode(w *writer) { w.u32(m.Index) }
