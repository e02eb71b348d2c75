package protocol

import (
	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// InitialHandshake is the server's greeting packet, per spec §4.2 step 1.
// Grounded on the teacher's server/net/handshake.go HandshakePacket, with
// the field ordering corrected: the teacher's struct drops the
// auth-plugin-data-len byte and the 10 reserved bytes that sit between the
// capability-flags-upper bytes and the second half of the auth-plugin-data,
// which this type restores so a real server's greeting parses correctly.
type InitialHandshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte // scramble, 8 bytes + (pluginDataLen-8) bytes, NUL stripped
	Capabilities    CapabilityFlags
	CharacterSet    byte
	StatusFlags     uint16
	AuthPluginName  string
}

// DecodeInitialHandshake parses the payload of the first packet a server
// sends after the client connects.
func DecodeInitialHandshake(payload []byte) (*InitialHandshake, error) {
	r := NewReader(payload)

	protoVer, err := r.Byte()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake protocol version", err)
	}

	serverVersion, err := r.NullTerminatedString()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake server version", err)
	}

	connID, err := r.Uint32()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake connection id", err)
	}

	authPluginDataPart1, err := r.FixedBytes(8)
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake auth data part 1", err)
	}
	if _, err := r.Byte(); err != nil { // filler
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake filler", err)
	}

	capLow, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake capability flags (low)", err)
	}

	var charset byte
	var statusFlags uint16
	var capHigh uint16
	var authPluginDataLen byte
	var authPluginName string
	authData := append([]byte{}, authPluginDataPart1...)

	if r.Len() > 0 {
		charset, err = r.Byte()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake charset", err)
		}
		statusFlags, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake status flags", err)
		}
		capHigh, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake capability flags (high)", err)
		}
		authPluginDataLen, err = r.Byte()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake auth plugin data len", err)
		}
		if err := r.Skip(10); err != nil { // reserved
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake reserved bytes", err)
		}

		caps := CapabilityFlags(capLow) | CapabilityFlags(capHigh)<<16
		if caps.Has(ClientSecureConnection) {
			part2Len := int(authPluginDataLen) - 8
			if part2Len < 13 {
				part2Len = 13 // servers pad to 13 even when len byte says otherwise
			}
			part2, err := r.FixedBytes(part2Len)
			if err != nil {
				return nil, errkind.NewProtocolError(errkind.MalformedPacket, "handshake auth data part 2", err)
			}
			// Strip the trailing NUL terminator.
			if n := len(part2); n > 0 && part2[n-1] == 0 {
				part2 = part2[:n-1]
			}
			authData = append(authData, part2...)
		}

		if caps.Has(ClientPluginAuth) {
			authPluginName, err = r.NullTerminatedString()
			if err != nil {
				// Some servers omit the trailing NUL on the last field.
				authPluginName = r.RestOfPacketString()
			}
		}
	}

	capabilities := CapabilityFlags(capLow) | CapabilityFlags(capHigh)<<16

	return &InitialHandshake{
		ProtocolVersion: protoVer,
		ServerVersion:   serverVersion,
		ConnectionID:    connID,
		AuthPluginData:  authData,
		Capabilities:    capabilities,
		CharacterSet:    charset,
		StatusFlags:     statusFlags,
		AuthPluginName:  authPluginName,
	}, nil
}

// ConnectAttr is one key/value pair sent in the handshake response when
// ClientConnectAttrs is negotiated, per spec §4.2's connection-attributes
// supplement.
type ConnectAttr struct {
	Key, Value string
}

// HandshakeResponse41 is the client's reply to InitialHandshake, per spec
// §4.2 step 3. Grounded in shape on the teacher's handshake packet
// encoding, generalized to cover the plugin-auth and connect-attrs
// extensions the teacher's server side never needed to emit.
type HandshakeResponse41 struct {
	ClientCapabilities CapabilityFlags
	MaxPacketSize      uint32
	CharacterSet       byte
	Username           string
	AuthResponse       []byte
	Database           string
	AuthPluginName     string
	ConnectAttrs       []ConnectAttr
}

// Encode serializes the handshake response.
func (h *HandshakeResponse41) Encode() []byte {
	w := NewWriter(128)
	w.Uint32(uint32(h.ClientCapabilities))
	w.Uint32(h.MaxPacketSize)
	w.Byte(h.CharacterSet)
	w.Zero(23)
	w.NullTerminatedString(h.Username)

	if h.ClientCapabilities.Has(ClientPluginAuthLenencClientData) {
		w.LengthEncodedBytes(h.AuthResponse)
	} else if h.ClientCapabilities.Has(ClientSecureConnection) {
		w.Byte(byte(len(h.AuthResponse)))
		w.RawBytes(h.AuthResponse)
	} else {
		w.RawBytes(h.AuthResponse)
		w.Byte(0)
	}

	if h.ClientCapabilities.Has(ClientConnectWithDB) {
		w.NullTerminatedString(h.Database)
	}

	if h.ClientCapabilities.Has(ClientPluginAuth) {
		w.NullTerminatedString(h.AuthPluginName)
	}

	if h.ClientCapabilities.Has(ClientConnectAttrs) {
		attrs := NewWriter(64)
		for _, a := range h.ConnectAttrs {
			attrs.LengthEncodedString(a.Key)
			attrs.LengthEncodedString(a.Value)
		}
		w.LengthEncodedBytes(attrs.Bytes())
	}

	return w.Bytes()
}

// AuthSwitchRequest signals the server wants a different auth plugin, per
// spec §4.4.
type AuthSwitchRequest struct {
	PluginName string
	PluginData []byte
}

// DecodeAuthSwitchRequest parses a full Auth Switch Request payload,
// reading and skipping its leading 0xfe header byte itself.
func DecodeAuthSwitchRequest(payload []byte) (*AuthSwitchRequest, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil { // 0xfe marker
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "auth switch marker", err)
	}
	name, err := r.NullTerminatedString()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "auth switch plugin name", err)
	}
	data := r.RestOfPacketBytes()
	// Servers commonly NUL-terminate the scramble; strip it if present.
	if n := len(data); n > 0 && data[n-1] == 0 {
		data = data[:n-1]
	}
	return &AuthSwitchRequest{PluginName: name, PluginData: data}, nil
}

// EncodeAuthSwitchResponse wraps the client's response to an
// AuthSwitchRequest: the raw auth response bytes with no header.
func EncodeAuthSwitchResponse(data []byte) []byte {
	return data
}

// AuthMoreData is the 0x01-prefixed packet servers use mid-authentication
// for multi-round plugins such as caching_sha2_password, per spec §4.4.
type AuthMoreData struct {
	Data []byte
}

// DecodeAuthMoreData parses a payload beginning with the 0x01 marker byte.
func DecodeAuthMoreData(payload []byte) (*AuthMoreData, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil { // 0x01 marker
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "auth more data marker", err)
	}
	return &AuthMoreData{Data: r.RestOfPacketBytes()}, nil
}
