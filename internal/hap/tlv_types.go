// Package hap implements HomeKit Accessory Protocol pairing (Pair-Setup,
// Pair-Verify, transient pairing) and the encrypted session it
// establishes — used directly by the MRP and Companion stacks and
// tunneled inside AirPlay 2 for RAOP.
package hap

// TLV8 type tags used by the Pair-Setup/Pair-Verify message set.
const (
	tlvMethod        byte = 0x00
	tlvIdentifier    byte = 0x01
	tlvSalt          byte = 0x02
	tlvPublicKey     byte = 0x03
	tlvProof         byte = 0x04
	tlvEncryptedData byte = 0x05
	tlvState         byte = 0x06
	tlvError         byte = 0x07
	tlvRetryDelay    byte = 0x08
	tlvSignature     byte = 0x0A
	tlvFlags         byte = 0x13
)

// Pairing method values for the tlvMethod field.
const (
	methodPairSetup          byte = 0x00
	methodPairVerify         byte = 0x00
	methodPairSetupWithAuth  byte = 0x01
	methodTransientPairSetup byte = 0x06
)

// Error sub-codes carried in tlvError.
const (
	tlvErrUnknown        byte = 0x01
	tlvErrAuthentication byte = 0x02
	tlvErrBackoff        byte = 0x03
	tlvErrMaxPeers       byte = 0x04
	tlvErrMaxTries       byte = 0x05
	tlvErrUnavailable    byte = 0x06
	tlvErrBusy           byte = 0x07
)

// state values for the tlvState field (M1..M6 / M1..M4).
const (
	stateM1 byte = 0x01
	stateM2 byte = 0x02
	stateM3 byte = 0x03
	stateM4 byte = 0x04
	stateM5 byte = 0x05
	stateM6 byte = 0x06
)
