package wire

const (
	DateTemplateSize  = 6
	RejectTextSize    = 33
	ServerNameSize    = 48
	UserNameSize      = 40
	LabelSize         = 40
	PromptSize        = 32
	SoftKeyLabelSize  = 16
	SoftKeySetEntries = 16

	// maxButtons and maxSoftKeys bound repeated sections read off the wire.
	maxButtons  = 56
	maxSoftKeys = 32
)

// RegisterAck accepts a registration.
type RegisterAck struct {
	KeepAlive          uint32
	DateTemplate       string
	SecondaryKeepAlive uint32
	ProtocolVersion    uint8
}

func (*RegisterAck) ID() MessageID { return RegisterAckMessage }

func (m *RegisterAck) decode(r *reader) {
	m.KeepAlive = r.u32()
	m.DateTemplate = r.str(DateTemplateSize)
	r.skip(2)
	m.SecondaryKeepAlive = r.u32()
	m.ProtocolVersion = r.u8()
}

func (m *RegisterAck) encode(w *writer) {
	w.u32(m.KeepAlive)
	w.str(m.DateTemplate, DateTemplateSize)
	w.pad(2)
	w.u32(m.SecondaryKeepAlive)
	w.u8(m.ProtocolVersion)
	w.pad(3)
}

type RegisterReject struct {
	Text string
}

func (*RegisterReject) ID() MessageID      { return RegisterRejectMessage }
func (m *RegisterReject) decode(r *reader) { m.Text = r.str(RejectTextSize) }
func (m *RegisterReject) encode(w *writer) { w.str(m.Text, RejectTextSize) }

type RegisterTokenAck struct{}

func (*RegisterTokenAck) ID() MessageID  { return RegisterTokenAckMessage }
func (*RegisterTokenAck) decode(*reader) {}
func (*RegisterTokenAck) encode(*writer) {}

type StartTone struct {
	Tone         uint32
	LineInstance uint32
	CallID       uint32
}

func (*StartTone) ID() MessageID { return StartToneMessage }

func (m *StartTone) decode(r *reader) {
	m.Tone = r.u32()
	r.skip(4)
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *StartTone) encode(w *writer) {
	w.u32(m.Tone)
	w.pad(4)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type StopTone struct {
	LineInstance uint32
	CallID       uint32
}

func (*StopTone) ID() MessageID { return StopToneMessage }

func (m *StopTone) decode(r *reader) {
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *StopTone) encode(w *writer) {
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type SetRinger struct {
	Mode         uint32
	Duration     uint32
	LineInstance uint32
	CallID       uint32
}

func (*SetRinger) ID() MessageID { return SetRingerMessage }

func (m *SetRinger) decode(r *reader) {
	m.Mode = r.u32()
	m.Duration = r.u32()
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *SetRinger) encode(w *writer) {
	w.u32(m.Mode)
	w.u32(m.Duration)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type SetLamp struct {
	Stimulus uint32
	Instance uint32
	Mode     uint32
}

func (*SetLamp) ID() MessageID { return SetLampMessage }

func (m *SetLamp) decode(r *reader) {
	m.Stimulus = r.u32()
	m.Instance = r.u32()
	m.Mode = r.u32()
}

func (m *SetLamp) encode(w *writer) {
	w.u32(m.Stimulus)
	w.u32(m.Instance)
	w.u32(m.Mode)
}

type SetSpeakerMode struct {
	Mode uint32
}

func (*SetSpeakerMode) ID() MessageID      { return SetSpeakerModeMessage }
func (m *SetSpeakerMode) decode(r *reader) { m.Mode = r.u32() }
func (m *SetSpeakerMode) encode(w *writer) { w.u32(m.Mode) }

type CallInfo struct {
	CallingPartyName string
	CallingParty     string
	CalledPartyName  string
	CalledParty      string
	LineInstance     uint32
	CallID           uint32
	CallType         uint32
}

func (*CallInfo) ID() MessageID { return CallInfoMessage }

func (m *CallInfo) decode(r *reader) {
	m.CallingPartyName = r.str(DisplayNameSize)
	m.CallingParty = r.str(DirNumberSize)
	m.CalledPartyName = r.str(DisplayNameSize)
	m.CalledParty = r.str(DirNumberSize)
	m.LineInstance = r.u32()
	m.CallID = r.u32()
	m.CallType = r.u32()
}

func (m *CallInfo) encode(w *writer) {
	w.str(m.CallingPartyName, DisplayNameSize)
	w.str(m.CallingParty, DirNumberSize)
	w.str(m.CalledPartyName, DisplayNameSize)
	w.str(m.CalledParty, DirNumberSize)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
	w.u32(m.CallType)
}

type ForwardStat struct {
	ActiveForward     uint32
	LineNumber        uint32
	ForwardAllActive  uint32
	ForwardAllNumber  string
	ForwardBusyActive uint32
	ForwardBusyNumber string
}

func (*ForwardStat) ID() MessageID { return ForwardStatMessage }

func (m *ForwardStat) decode(r *reader) {
	m.ActiveForward = r.u32()
	m.LineNumber = r.u32()
	m.ForwardAllActive = r.u32()
	m.ForwardAllNumber = r.str(DirNumberSize)
	m.ForwardBusyActive = r.u32()
	m.ForwardBusyNumber = r.str(DirNumberSize)
}

func (m *ForwardStat) encode(w *writer) {
	w.u32(m.ActiveForward)
	w.u32(m.LineNumber)
	w.u32(m.ForwardAllActive)
	w.str(m.ForwardAllNumber, DirNumberSize)
	w.u32(m.ForwardBusyActive)
	w.str(m.ForwardBusyNumber, DirNumberSize)
	// no-answer forwarding is not offered
	w.u32(0)
	w.pad(DirNumberSize)
}

type SpeedDialStat struct {
	Number      uint32
	DirNumber   string
	DisplayName string
}

func (*SpeedDialStat) ID() MessageID { return SpeedDialStatMessage }

func (m *SpeedDialStat) decode(r *reader) {
	m.Number = r.u32()
	m.DirNumber = r.str(DirNumberSize)
	m.DisplayName = r.str(DisplayNameSize)
}

func (m *SpeedDialStat) encode(w *writer) {
	w.u32(m.Number)
	w.str(m.DirNumber, DirNumberSize)
	w.str(m.DisplayName, DisplayNameSize)
}

type LineStat struct {
	LineNumber  uint32
	DirNumber   string
	DisplayName string
	Label       string
}

func (*LineStat) ID() MessageID { return LineStatMessage }

func (m *LineStat) decode(r *reader) {
	m.LineNumber = r.u32()
	m.DirNumber = r.str(DirNumberSize)
	m.DisplayName = r.str(DisplayNameSize)
	m.Label = r.str(LabelSize)
}

func (m *LineStat) encode(w *writer) {
	w.u32(m.LineNumber)
	w.str(m.DirNumber, DirNumberSize)
	w.str(m.DisplayName, DisplayNameSize)
	w.str(m.Label, LabelSize)
}

type ConfigStat struct {
	DeviceName       string
	UserID           uint32
	Instance         uint32
	UserName         string
	ServerName       string
	NumberLines      uint32
	NumberSpeedDials uint32
}

func (*ConfigStat) ID() MessageID { return ConfigStatMessage }

func (m *ConfigStat) decode(r *reader) {
	m.DeviceName = r.str(DeviceNameSize)
	m.UserID = r.u32()
	m.Instance = r.u32()
	m.UserName = r.str(UserNameSize)
	m.ServerName = r.str(UserNameSize)
	m.NumberLines = r.u32()
	m.NumberSpeedDials = r.u32()
}

func (m *ConfigStat) encode(w *writer) {
	w.str(m.DeviceName, DeviceNameSize)
	w.u32(m.UserID)
	w.u32(m.Instance)
	w.str(m.UserName, UserNameSize)
	w.str(m.ServerName, UserNameSize)
	w.u32(m.NumberLines)
	w.u32(m.NumberSpeedDials)
}

type DefineTimeDate struct {
	Year         uint32
	Month        uint32
	DayOfWeek    uint32
	Day          uint32
	Hour         uint32
	Minute       uint32
	Second       uint32
	Milliseconds uint32
	SystemTime   uint32
}

func (*DefineTimeDate) ID() MessageID { return DefineTimeDateMessage }

func (m *DefineTimeDate) decode(r *reader) {
	for _, f := range m.fields() {
		*f = r.u32()
	}
}

func (m *DefineTimeDate) encode(w *writer) {
	for _, f := range m.fields() {
		w.u32(*f)
	}
}

func (m *DefineTimeDate) fields() []*uint32 {
	return []*uint32{&m.Year, &m.Month, &m.DayOfWeek, &m.Day, &m.Hour,
		&m.Minute, &m.Second, &m.Milliseconds, &m.SystemTime}
}

// Button definitions used in a ButtonTemplate.
const (
	ButtonSpeedDial uint8 = 0x02
	ButtonLine      uint8 = 0x09
	ButtonNone      uint8 = 0xFF
)

type Button struct {
	Instance   uint8
	Definition uint8
}

type ButtonTemplate struct {
	Offset  uint32
	Total   uint32
	Buttons []Button
}

func (*ButtonTemplate) ID() MessageID { return ButtonTemplateMessage }

func (m *ButtonTemplate) decode(r *reader) {
	m.Offset = r.u32()
	n := int(r.u32())
	m.Total = r.u32()
	if n > maxButtons {
		n = maxButtons
	}
	for i := 0; i < n && r.remaining() >= 2; i++ {
		m.Buttons = append(m.Buttons, Button{Instance: r.u8(), Definition: r.u8()})
	}
}

func (m *ButtonTemplate) encode(w *writer) {
	w.u32(m.Offset)
	w.u32(uint32(len(m.Buttons)))
	w.u32(m.Total)
	for _, b := range m.Buttons {
		w.u8(b.Instance)
		w.u8(b.Definition)
	}
}

type Version struct {
	Version string
}

func (*Version) ID() MessageID      { return VersionMessage }
func (m *Version) decode(r *reader) { m.Version = r.str(VersionSize) }
func (m *Version) encode(w *writer) { w.str(m.Version, VersionSize) }

type CapabilitiesReq struct{}

func (*CapabilitiesReq) ID() MessageID  { return CapabilitiesReqMessage }
func (*CapabilitiesReq) decode(*reader) {}
func (*CapabilitiesReq) encode(*writer) {}

type ServerRes struct {
	ServerName string
	Port       uint32
	IP         [4]byte
}

func (*ServerRes) ID() MessageID { return ServerResMessage }

func (m *ServerRes) decode(r *reader) {
	m.ServerName = r.str(ServerNameSize)
	m.Port = r.u32()
	m.IP = r.ip4()
}

func (m *ServerRes) encode(w *writer) {
	w.str(m.ServerName, ServerNameSize)
	w.u32(m.Port)
	w.ip4(m.IP)
}

type KeepAliveAck struct{}

func (*KeepAliveAck) ID() MessageID  { return KeepAliveAckMessage }
func (*KeepAliveAck) decode(*reader) {}
func (*KeepAliveAck) encode(*writer) {}

type SoftKeyDefinition struct {
	Label string
	Event uint32
}

type SoftKeyTemplateRes struct {
	Offset      uint32
	Total       uint32
	Definitions []SoftKeyDefinition
}

func (*SoftKeyTemplateRes) ID() MessageID { return SoftKeyTemplateResMessage }

func (m *SoftKeyTemplateRes) decode(r *reader) {
	m.Offset = r.u32()
	n := int(r.u32())
	m.Total = r.u32()
	if n > maxSoftKeys {
		n = maxSoftKeys
	}
	for i := 0; i < n && r.remaining() >= SoftKeyLabelSize+4; i++ {
		m.Definitions = append(m.Definitions, SoftKeyDefinition{
			Label: r.str(SoftKeyLabelSize),
			Event: r.u32(),
		})
	}
}

func (m *SoftKeyTemplateRes) encode(w *writer) {
	w.u32(m.Offset)
	w.u32(uint32(len(m.Definitions)))
	w.u32(m.Total)
	for _, d := range m.Definitions {
		w.str(d.Label, SoftKeyLabelSize)
		w.u32(d.Event)
	}
}

// SoftKeySet maps soft key positions to template indexes for one call state.
type SoftKeySet struct {
	TemplateIndex [SoftKeySetEntries]uint8
	InfoIndex     [SoftKeySetEntries]uint16
}

type SoftKeySetRes struct {
	Offset uint32
	Total  uint32
	Sets   []SoftKeySet
}

func (*SoftKeySetRes) ID() MessageID { return SoftKeySetResMessage }

func (m *SoftKeySetRes) decode(r *reader) {
	m.Offset = r.u32()
	n := int(r.u32())
	m.Total = r.u32()
	if n > maxSoftKeys {
		n = maxSoftKeys
	}
	for i := 0; i < n && r.remaining() >= SoftKeySetEntries*3; i++ {
		var s SoftKeySet
		for j := range s.TemplateIndex {
			s.TemplateIndex[j] = r.u8()
		}
		for j := range s.InfoIndex {
			s.InfoIndex[j] = r.u16()
		}
		m.Sets = append(m.Sets, s)
	}
}

func (m *SoftKeySetRes) encode(w *writer) {
	w.u32(m.Offset)
	w.u32(uint32(len(m.Sets)))
	w.u32(m.Total)
	for _, s := range m.Sets {
		for _, t := range s.TemplateIndex {
			w.u8(t)
		}
		for _, i := range s.InfoIndex {
			w.u16(i)
		}
	}
}

type SelectSoftKeys struct {
	LineInstance uint32
	CallID       uint32
	SetIndex     uint32
	ValidKeyMask uint32
}

func (*SelectSoftKeys) ID() MessageID { return SelectSoftKeysMessage }

func (m *SelectSoftKeys) decode(r *reader) {
	m.LineInstance = r.u32()
	m.CallID = r.u32()
	m.SetIndex = r.u32()
	m.ValidKeyMask = r.u32()
}

func (m *SelectSoftKeys) encode(w *writer) {
	w.u32(m.LineInstance)
	w.u32(m.CallID)
	w.u32(m.SetIndex)
	w.u32(m.ValidKeyMask)
}

type CallState struct {
	State        uint32
	LineInstance uint32
	CallID       uint32
	Visibility   uint32
	Priority     uint32
}

func (*CallState) ID() MessageID { return CallStateMessage }

func (m *CallState) decode(r *reader) {
	m.State = r.u32()
	m.LineInstance = r.u32()
	m.CallID = r.u32()
	m.Visibility = r.u32()
	m.Priority = r.u32()
}

func (m *CallState) encode(w *writer) {
	w.u32(m.State)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
	w.u32(m.Visibility)
	w.u32(m.Priority)
}

type DisplayPromptStatus struct {
	Timeout      uint32
	Text         string
	LineInstance uint32
	CallID       uint32
}

func (*DisplayPromptStatus) ID() MessageID { return DisplayPromptStatusMessage }

func (m *DisplayPromptStatus) decode(r *reader) {
	m.Timeout = r.u32()
	m.Text = r.str(PromptSize)
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *DisplayPromptStatus) encode(w *writer) {
	w.u32(m.Timeout)
	w.str(m.Text, PromptSize)
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type ClearPromptStatus struct {
	LineInstance uint32
	CallID       uint32
}

func (*ClearPromptStatus) ID() MessageID { return ClearPromptStatusMessage }

func (m *ClearPromptStatus) decode(r *reader) {
	m.LineInstance = r.u32()
	m.CallID = r.u32()
}

func (m *ClearPromptStatus) encode(w *writer) {
	w.u32(m.LineInstance)
	w.u32(m.CallID)
}

type DisplayNotify struct {
	Timeout uint32
	Text    string
}

func (*DisplayNotify) ID() MessageID { return DisplayNotifyMessage }

func (m *DisplayNotify) decode(r *reader) {
	m.Timeout = r.u32()
	m.Text = r.str(PromptSize)
}

func (m *DisplayNotify) encode(w *writer) {
	w.u32(m.Timeout)
	w.str(m.Text, PromptSize)
}

type ActivateCallPlane struct {
	LineInstance uint32
}

func (*ActivateCallPlane) ID() MessageID      { return ActivateCallPlaneMessage }
func (m *ActivateCallPlane) decode(r *reader) { m.LineInstance = r.u32() }
func (m *ActivateCallPlane) encode(w *writer) { w.u32(m.LineInstance) }

type UnregisterAck struct {
	Status uint32
}

func (*UnregisterAck) ID() MessageID      { return UnregisterAckMessage }
func (m *UnregisterAck) decode(r *reader) { m.Status = r.u32() }
func (m *UnregisterAck) encode(w *writer) { w.u32(m.Status) }
