package executor

import (
	"context"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
	"github.com/zhukovaskychina/xmysql-driver/session"
)

// SidecarDialer builds a Dialer that opens a brand-new, pool-bypassing
// Session to the same server as cfg describes, for the sole purpose of
// issuing KILL QUERY against a stuck command's thread id, per spec
// §4.2's cancellation design ("a fresh connection, not a borrowed one,
// since the one being killed is by definition unavailable").
func SidecarDialer(cfg dsn.Config) Dialer {
	return func(ctx context.Context) (*session.Session, error) {
		opts := session.ConnectOptions{
			Username:       cfg.User,
			Password:       cfg.Password,
			Database:       cfg.Database,
			TLSMode:        cfg.SSLMode,
			ConnectTimeout: cfg.ConnectionTimeout,
			Charset:        defaultCharset,
			UseCompression: cfg.UseCompression,
			GuidFormat:     cfg.GuidFormat.Protocol(),
		}
		addr := cfg.Host + ":" + portString(cfg.Port)
		return session.Connect(ctx, "tcp", addr, opts, nil)
	}
}

// defaultCharset is utf8mb4's collation id (utf8mb4_general_ci), the same
// default the dsn package assumes when a DSN omits CharacterSet.
const defaultCharset = 45

func portString(port int) string {
	if port == 0 {
		port = 3306
	}
	return uitoa(uint32(port))
}
