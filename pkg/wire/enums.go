package wire

// FrameType discriminates the three frame kinds on the wire.
type FrameType uint8

const (
	// FrameTypeResponse marks a device reply. The body leads with a
	// response code byte.
	FrameTypeResponse FrameType = 0x00

	// FrameTypeConnect marks an unencrypted session bootstrap request.
	FrameTypeConnect FrameType = 0x01

	// FrameTypeSecure marks an encrypted operation request.
	FrameTypeSecure FrameType = 0x02
)

// String returns a human-readable name for the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameTypeResponse:
		return "Response"
	case FrameTypeConnect:
		return "Connect"
	case FrameTypeSecure:
		return "Secure"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the frame type is a defined value.
func (t FrameType) IsValid() bool {
	return t <= FrameTypeSecure
}

// IsRequest returns true for the client-originated frame types.
func (t FrameType) IsRequest() bool {
	return t == FrameTypeConnect || t == FrameTypeSecure
}

// RequestType identifies the operation carried by a SECURE frame.
// The byte values are the device firmware's request codes.
type RequestType uint8

const (
	RequestFinalizePairing    RequestType = 0x00
	RequestGetAddresses       RequestType = 0x01
	RequestSign               RequestType = 0x03
	RequestGetWallets         RequestType = 0x04
	RequestGetKvRecords       RequestType = 0x07
	RequestAddKvRecords       RequestType = 0x08
	RequestRemoveKvRecords    RequestType = 0x09
	RequestFetchEncryptedData RequestType = 0x0a
	RequestTest               RequestType = 0x0b
)

// String returns a human-readable name for the request type.
func (t RequestType) String() string {
	switch t {
	case RequestFinalizePairing:
		return "finalizePairing"
	case RequestGetAddresses:
		return "getAddresses"
	case RequestSign:
		return "sign"
	case RequestGetWallets:
		return "getWallets"
	case RequestGetKvRecords:
		return "getKvRecords"
	case RequestAddKvRecords:
		return "addKvRecords"
	case RequestRemoveKvRecords:
		return "removeKvRecords"
	case RequestFetchEncryptedData:
		return "fetchEncryptedData"
	case RequestTest:
		return "test"
	default:
		return "unknown"
	}
}

// IsValid returns true if the request type is a defined operation.
func (t RequestType) IsValid() bool {
	switch t {
	case RequestFinalizePairing, RequestGetAddresses, RequestSign,
		RequestGetWallets, RequestGetKvRecords, RequestAddKvRecords,
		RequestRemoveKvRecords, RequestFetchEncryptedData, RequestTest:
		return true
	default:
		return false
	}
}

// ResponseCode is the status byte leading every response body.
// The byte values are the device firmware's response codes.
type ResponseCode uint8

const (
	CodeSuccess            ResponseCode = 0x00
	CodeInvalidMsg         ResponseCode = 0x80
	CodeUnsupportedVersion ResponseCode = 0x81
	CodeDeviceBusy         ResponseCode = 0x82
	CodeUserTimeout        ResponseCode = 0x83
	CodeUserDeclined       ResponseCode = 0x84
	CodePairFailed         ResponseCode = 0x85
	CodePairDisabled       ResponseCode = 0x86
	CodePermissionDisabled ResponseCode = 0x87
	CodeInternalError      ResponseCode = 0x88
	CodeGceTimeout         ResponseCode = 0x89
	CodeWrongWallet        ResponseCode = 0x8a
	CodeDeviceLocked       ResponseCode = 0x8b
	CodeDisabled           ResponseCode = 0x8c
	CodeAlready            ResponseCode = 0x8d
	CodeInvalidEphemID     ResponseCode = 0x8e
)

// String returns a human-readable name for the response code.
func (c ResponseCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInvalidMsg:
		return "invalidMsg"
	case CodeUnsupportedVersion:
		return "unsupportedVersion"
	case CodeDeviceBusy:
		return "deviceBusy"
	case CodeUserTimeout:
		return "userTimeout"
	case CodeUserDeclined:
		return "userDeclined"
	case CodePairFailed:
		return "pairFailed"
	case CodePairDisabled:
		return "pairDisabled"
	case CodePermissionDisabled:
		return "permissionDisabled"
	case CodeInternalError:
		return "internalError"
	case CodeGceTimeout:
		return "gceTimeout"
	case CodeWrongWallet:
		return "wrongWallet"
	case CodeDeviceLocked:
		return "deviceLocked"
	case CodeDisabled:
		return "disabled"
	case CodeAlready:
		return "already"
	case CodeInvalidEphemID:
		return "invalidEphemId"
	default:
		return "unknown"
	}
}

// IsValid returns true if the code is a defined value.
func (c ResponseCode) IsValid() bool {
	return c == CodeSuccess || (c >= CodeInvalidMsg && c <= CodeInvalidEphemID)
}

// AddressFlag selects the format of derived public material on
// getAddresses.
type AddressFlag uint8

const (
	// AddressSecp256k1Pub requests chain addresses (the default).
	AddressSecp256k1Pub AddressFlag = 0

	// AddressEd25519Pub requests raw ed25519 public keys.
	AddressEd25519Pub AddressFlag = 1

	// AddressSecp256k1PubUncompressed requests uncompressed secp256k1
	// public keys.
	AddressSecp256k1PubUncompressed AddressFlag = 2
)

// String returns a human-readable name for the address flag.
func (f AddressFlag) String() string {
	switch f {
	case AddressSecp256k1Pub:
		return "SECP256K1_PUB"
	case AddressEd25519Pub:
		return "ED25519_PUB"
	case AddressSecp256k1PubUncompressed:
		return "SECP256K1_PUB_UNCOMPRESSED"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the flag is a defined value.
func (f AddressFlag) IsValid() bool {
	return f <= AddressSecp256k1PubUncompressed
}

// Curve selects the signing curve for a sign request.
type Curve uint8

const (
	CurveSecp256k1 Curve = 0
	CurveP256      Curve = 1
	CurveEd25519   Curve = 2
)

// String returns a human-readable name for the curve.
func (c Curve) String() string {
	switch c {
	case CurveSecp256k1:
		return "SECP256K1"
	case CurveP256:
		return "P256"
	case CurveEd25519:
		return "ED25519"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the curve is a defined value.
func (c Curve) IsValid() bool {
	return c <= CurveEd25519
}

// HashType selects the digest applied to sign request data before
// signing.
type HashType uint8

const (
	HashNone      HashType = 0
	HashSha256    HashType = 1
	HashKeccak256 HashType = 2
)

// String returns a human-readable name for the hash type.
func (h HashType) String() string {
	switch h {
	case HashNone:
		return "NONE"
	case HashSha256:
		return "SHA256"
	case HashKeccak256:
		return "KECCAK256"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the hash type is a defined value.
func (h HashType) IsValid() bool {
	return h <= HashKeccak256
}

// SigningSchema is advisory metadata describing what the sign request
// data represents. The device forwards it to the approval UI.
type SigningSchema uint8

const (
	SchemaGeneral     SigningSchema = 0
	SchemaEthTransfer SigningSchema = 1
	SchemaEthMsg      SigningSchema = 2
	SchemaBtcTransfer SigningSchema = 3
)

// String returns a human-readable name for the schema.
func (s SigningSchema) String() string {
	switch s {
	case SchemaGeneral:
		return "GENERAL"
	case SchemaEthTransfer:
		return "ETH_TRANSFER"
	case SchemaEthMsg:
		return "ETH_MSG"
	case SchemaBtcTransfer:
		return "BTC_TRANSFER"
	default:
		return "Unknown"
	}
}

// PayloadEncoding is advisory metadata describing the sign request
// data encoding, forwarded to the approval UI.
type PayloadEncoding uint8

const (
	EncodingNone    PayloadEncoding = 0
	EncodingEvm     PayloadEncoding = 1
	EncodingSolana  PayloadEncoding = 2
	EncodingBitcoin PayloadEncoding = 3
)

// String returns a human-readable name for the encoding.
func (e PayloadEncoding) String() string {
	switch e {
	case EncodingNone:
		return "NONE"
	case EncodingEvm:
		return "EVM"
	case EncodingSolana:
		return "SOLANA"
	case EncodingBitcoin:
		return "BITCOIN"
	default:
		return "Unknown"
	}
}
