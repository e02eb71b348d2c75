package protocol

// CapabilityFlags is the 32-bit set negotiated at handshake time, per
// spec §3. Only the low 16 bits are sent in the Initial Handshake Packet;
// the high 16 bits ride along in a second field. Grounded on the constant
// table in the teacher's server/protocol/auth.go (GetCapabilities), widened
// to the full client-capability surface the handshake response needs and
// given the real MySQL bit positions (the teacher's table only fills in
// the low bits it uses).
type CapabilityFlags uint32

const (
	ClientLongPassword                  CapabilityFlags = 0x00000001
	ClientFoundRows                      CapabilityFlags = 0x00000002
	ClientLongFlag                       CapabilityFlags = 0x00000004
	ClientConnectWithDB                  CapabilityFlags = 0x00000008
	ClientNoSchema                       CapabilityFlags = 0x00000010
	ClientCompress                       CapabilityFlags = 0x00000020
	ClientODBC                           CapabilityFlags = 0x00000040
	ClientLocalFiles                     CapabilityFlags = 0x00000080
	ClientIgnoreSpace                    CapabilityFlags = 0x00000100
	ClientProtocol41                     CapabilityFlags = 0x00000200
	ClientInteractive                    CapabilityFlags = 0x00000400
	ClientSSL                            CapabilityFlags = 0x00000800
	ClientIgnoreSigpipe                  CapabilityFlags = 0x00001000
	ClientTransactions                   CapabilityFlags = 0x00002000
	ClientReserved                       CapabilityFlags = 0x00004000
	ClientSecureConnection               CapabilityFlags = 0x00008000
	ClientMultiStatements                CapabilityFlags = 0x00010000
	ClientMultiResults                   CapabilityFlags = 0x00020000
	ClientPSMultiResults                 CapabilityFlags = 0x00040000
	ClientPluginAuth                     CapabilityFlags = 0x00080000
	ClientConnectAttrs                   CapabilityFlags = 0x00100000
	ClientPluginAuthLenencClientData     CapabilityFlags = 0x00200000
	ClientCanHandleExpiredPasswords      CapabilityFlags = 0x00400000
	ClientSessionTrack                   CapabilityFlags = 0x00800000
	ClientDeprecateEOF                   CapabilityFlags = 0x01000000
	ClientZstdCompressionAlgorithm       CapabilityFlags = 0x04000000
	ClientQueryAttributes                CapabilityFlags = 0x08000000
	ClientCapabilityExtension            CapabilityFlags = 0x20000000
	ClientSSLVerifyServerCert            CapabilityFlags = 0x40000000
	ClientRememberOptions                CapabilityFlags = 0x80000000
)

// Has reports whether every bit in want is set in f.
func (f CapabilityFlags) Has(want CapabilityFlags) bool {
	return f&want == want
}

// Intersect returns the capabilities the client desires AND the server
// offers, per spec §4.2 step 2.
func Intersect(clientDesired, serverOffered CapabilityFlags) CapabilityFlags {
	return clientDesired & serverOffered
}

// DefaultClientCapabilities mirrors what a full client normally asks for;
// callers add ClientSSL/ClientCompress/ClientLocalFiles based on DSN options.
const DefaultClientCapabilities = ClientLongPassword |
	ClientFoundRows |
	ClientLongFlag |
	ClientProtocol41 |
	ClientTransactions |
	ClientSecureConnection |
	ClientMultiStatements |
	ClientMultiResults |
	ClientPSMultiResults |
	ClientPluginAuth |
	ClientPluginAuthLenencClientData |
	ClientConnectAttrs |
	ClientSessionTrack |
	ClientDeprecateEOF
