package wire

// Tones for StartTone.
const (
	ToneSilence  uint32 = 0x00
	ToneDial     uint32 = 0x21
	ToneBusy     uint32 = 0x23
	ToneAlert    uint32 = 0x24
	ToneReorder  uint32 = 0x25
	ToneCallWait uint32 = 0x2D
	ToneZip      uint32 = 0x31
)

// Ring modes for SetRinger.
const (
	RingOff     uint32 = 1
	RingInside  uint32 = 2
	RingOutside uint32 = 3
	RingFeature uint32 = 4
	RingSilent  uint32 = 5
	RingUrgent  uint32 = 6

	RingForever uint32 = 1
	RingOnce    uint32 = 2
)

// Lamp modes for SetLamp.
const (
	LampOff   uint32 = 1
	LampOn    uint32 = 2
	LampWink  uint32 = 3
	LampFlash uint32 = 4
	LampBlink uint32 = 5
)

// Speaker modes for SetSpeakerMode.
const (
	SpeakerOn  uint32 = 1
	SpeakerOff uint32 = 2
)

// Stimulus values carried by Stimulus and SetLamp.
const (
	StimulusRedial    uint32 = 0x01
	StimulusSpeedDial uint32 = 0x02
	StimulusHold      uint32 = 0x03
	StimulusTransfer  uint32 = 0x04
	StimulusLine      uint32 = 0x09
	StimulusVoiceMail uint32 = 0x0F
)

// Call states for CallState.
const (
	CallStateOffHook     uint32 = 1
	CallStateOnHook      uint32 = 2
	CallStateRingOut     uint32 = 3
	CallStateRingIn      uint32 = 4
	CallStateConnected   uint32 = 5
	CallStateBusy        uint32 = 6
	CallStateCongestion  uint32 = 7
	CallStateHold        uint32 = 8
	CallStateCallWaiting uint32 = 9
	CallStateProceed     uint32 = 12
)

// Soft key events carried by SoftKeyEvent.
const (
	SoftKeyRedial    uint32 = 0x01
	SoftKeyNewCall   uint32 = 0x02
	SoftKeyHold      uint32 = 0x03
	SoftKeyTransfer  uint32 = 0x04
	SoftKeyBackspace uint32 = 0x08
	SoftKeyEndCall   uint32 = 0x09
	SoftKeyResume    uint32 = 0x0A
	SoftKeyAnswer    uint32 = 0x0B
	SoftKeyDial      uint32 = 0x14
)

// Soft key set indexes for SelectSoftKeys.
const (
	KeySetOnHook    uint32 = 0
	KeySetConnected uint32 = 1
	KeySetOnHold    uint32 = 2
	KeySetRingIn    uint32 = 3
	KeySetOffHook   uint32 = 4
	KeySetRingOut   uint32 = 8
)

// Keypad buttons above 9 on KeypadButton.
const (
	KeypadStar  uint32 = 0x0E
	KeypadPound uint32 = 0x0F
)

// Codec identifiers seen in CapabilitiesRes.
const (
	CodecG711Alaw uint32 = 2
	CodecG711Ulaw uint32 = 4
	CodecG722     uint32 = 6
	CodecG729     uint32 = 11
	CodecG729A    uint32 = 12
)

// CodecName returns a short label for a codec identifier.
func CodecName(c uint32) string {
	switch c {
	case CodecG711Alaw:
		return "alaw"
	case CodecG711Ulaw:
		return "ulaw"
	case CodecG722:
		return "g722"
	case CodecG729, CodecG729A:
		return "g729"
	default:
		return "unknown"
	}
}
