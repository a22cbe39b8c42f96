package ws

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// indexesConsistent checks the registry's core invariant: session and user
// sets reference only registered connections and are never left empty.
func indexesConsistent(reg *Registry) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, set := range reg.sessions {
		if len(set) == 0 {
			return false
		}
		for id := range set {
			if _, ok := reg.conns[id]; !ok {
				return false
			}
		}
	}
	for _, set := range reg.users {
		if len(set) == 0 {
			return false
		}
		for id := range set {
			if _, ok := reg.conns[id]; !ok {
				return false
			}
		}
	}
	return true
}

func TestRegistryIndexConsistencyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("indexes only reference live connections after any op sequence", prop.ForAll(
		func(ops []int) bool {
			reg := NewRegistry(testConfig(), zap.NewNop())
			var ids []string

			for _, op := range ops {
				switch op % 4 {
				case 0:
					userID := ""
					if op%3 == 0 {
						userID = fmt.Sprintf("user-%d", (op>>2)%5)
					}
					conn, err := reg.Register(&stubSocket{}, userID, fmt.Sprintf("sess-%d", (op>>2)%4), "")
					if err != nil {
						return false
					}
					ids = append(ids, conn.ID)
				case 1:
					if len(ids) > 0 {
						reg.Unregister(ids[op%len(ids)])
					}
				case 2:
					if len(ids) > 0 {
						reg.Subscribe(ids[op%len(ids)], fmt.Sprintf("sess-%d", op%6))
					}
				case 3:
					if len(ids) > 0 {
						reg.Unsubscribe(ids[op%len(ids)], fmt.Sprintf("sess-%d", op%6))
					}
				}
				if !indexesConsistent(reg) {
					return false
				}
			}

			for _, id := range ids {
				reg.Unregister(id)
			}
			return reg.Count() == 0 && indexesConsistent(reg)
		},
		gen.SliceOf(gen.IntRange(0, 1<<20)),
	))

	properties.Property("broadcast reaches every subscriber exactly once", prop.ForAll(
		func(subscribers int) bool {
			reg := NewRegistry(testConfig(), zap.NewNop())
			socks := make([]*stubSocket, 0, subscribers)
			for i := 0; i < subscribers; i++ {
				sock := &stubSocket{}
				if _, err := reg.Register(sock, "", "sess-fan", ""); err != nil {
					return false
				}
				socks = append(socks, sock)
			}

			if got := reg.BroadcastToSession("sess-fan", signal(KindSystemMessage), ""); got != subscribers {
				return false
			}
			for _, sock := range socks {
				// greeting plus exactly one broadcast frame
				if sock.frameCount() != 2 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}
