// Package auth implements the pluggable authentication mechanisms
// negotiated during the handshake, per spec §4.4.
package auth

import (
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Plugin computes the authentication response bytes for one auth plugin.
// Implementations are stateless with respect to the connection; any
// per-exchange state (e.g. a cached RSA key) is threaded through
// Exchanger instead, per spec §4.4's multi-round plugins.
type Plugin interface {
	// Name is the plugin name as negotiated on the wire, e.g.
	// "mysql_native_password".
	Name() string

	// InitialResponse computes the auth-response bytes to send in the
	// handshake response packet (or after an auth-switch), given the
	// password and the server's challenge/scramble bytes.
	InitialResponse(password string, scramble []byte) ([]byte, error)
}

// Exchanger is implemented by plugins that may need additional
// server/client round trips beyond the initial response, using
// AuthMoreData packets (spec §4.4's caching_sha2_password full-auth path).
type Exchanger interface {
	Plugin

	// Continue is called when the server sends AuthMoreData during this
	// plugin's exchange. It returns the bytes to send back, or done=true
	// with a nil/empty response if the plugin has nothing further to
	// send and is waiting on the server's final OK/ERR.
	Continue(data []byte, password string, scramble []byte, serverPubKey func() ([]byte, error)) (response []byte, done bool, err error)
}

// registry is a copy-on-write map from plugin name to Plugin, per spec
// §5's requirement that the registry be safely readable while a new
// plugin is installed: readers take a snapshot pointer, writers swap it.
// Grounded on the teacher's server/auth/password_validator.go
// PasswordValidatorFactory, which performs the same name->implementation
// dispatch but as a single mutable map; this type generalizes that to the
// copy-on-write shape the spec calls for.
type registry struct {
	plugins map[string]Plugin
}

var current atomic.Pointer[registry]

func init() {
	current.Store(&registry{plugins: defaultPlugins()})
}

func defaultPlugins() map[string]Plugin {
	return map[string]Plugin{
		"mysql_native_password": NativePassword{},
		"caching_sha2_password": CachingSHA2Password{},
		"sha256_password":       SHA256Password{},
		"mysql_clear_password":  ClearPassword{},
		"client_ed25519":        Ed25519Password{},
	}
}

// Lookup returns the registered plugin for name, per spec §4.4's
// auth-plugin-name dispatch, or a UsageError if nothing is registered
// under that name.
func Lookup(name string) (Plugin, error) {
	reg := current.Load()
	p, ok := reg.plugins[name]
	if !ok {
		return nil, pkgerrors.Wrap(errkind.NewUsageError(errkind.InvalidState, "unsupported auth plugin: "+name), "auth plugin lookup")
	}
	return p, nil
}

// Register installs a plugin under its own Name(), replacing any existing
// registration, without disturbing lookups already in flight against the
// prior snapshot.
func Register(p Plugin) {
	prev := current.Load()
	next := &registry{plugins: make(map[string]Plugin, len(prev.plugins)+1)}
	for k, v := range prev.plugins {
		next.plugins[k] = v
	}
	next.plugins[p.Name()] = p
	current.Store(next)
}
