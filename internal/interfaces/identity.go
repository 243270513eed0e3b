package interfaces

import "context"

// Identity supplies the acting principal for audit metadata. The core
// records it on committed transactions; authentication itself happens in
// the surrounding service layer.
type Identity interface {
	Principal(ctx context.Context) string
}
