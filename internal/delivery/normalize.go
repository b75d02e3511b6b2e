package delivery

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNilRequest is returned when a nil request is handed to the normalizer.
var ErrNilRequest = errors.New("delivery request cannot be nil")

// GeoResolverFunc resolves the geo context of a request. It returns nil when
// no geo is available; failures are the resolver's to log, never the caller's.
type GeoResolverFunc func(ctx context.Context, requested *Geo) *Geo

// Normalize returns a validated copy of the request, ready for evaluation:
//   - the geo context is resolved through resolveGeo (when non-nil),
//   - a tntId of the form "<uuid>[.<locationHint>_0]" is assigned when the
//     request carries no visitor identifier at all,
//   - a request id is generated when absent.
//
// The caller's request is never mutated.
func Normalize(ctx context.Context, req *Request, locationHint string, resolveGeo GeoResolverFunc) (*Request, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	out := req.Clone()
	if out.Context == nil {
		out.Context = &Context{Channel: ChannelWeb}
	}

	if resolveGeo != nil {
		out.Context.Geo = resolveGeo(ctx, out.Context.Geo)
	}

	if out.ID.IsEmpty() {
		if out.ID == nil {
			out.ID = &VisitorID{}
		}
		out.ID.TntID = NewTntID(locationHint)
	}

	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}

	return out, nil
}

// NewTntID generates a tntId, suffixed with the location hint cluster when known.
func NewTntID(locationHint string) string {
	id := uuid.NewString()
	if locationHint == "" {
		return id
	}
	return id + "." + locationHint + "_0"
}
