package resource

import (
	future "github.com/hanpama/resourceful/internal/future"
)

// ServiceAvailable reports whether the service may take the request. A number
// is a retry-after delay in seconds.
func ServiceAvailable(d Descriptor) *future.Future[Verdict] {
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved(Verdict{Value: true})
	case Bool:
		return future.Resolved(Verdict{Value: bool(d)})
	case Number:
		return future.Resolved(Verdict{Overrides: Overrides{
			Headers: map[string]string{"retry-after": formatNumber(d)},
		}})
	case Func:
		raw, err := invoke(d, nil)
		return normalize(raw, err, ServiceAvailable)
	case Deferred:
		return await(d.Value, ServiceAvailable)
	default:
		return future.Resolved(Verdict{})
	}
}

// KnownMethod reports whether method is recognised. Method names are compared
// without regard to case.
func KnownMethod(d Descriptor, method string) *future.Future[Verdict] {
	again := func(next Descriptor) *future.Future[Verdict] { return KnownMethod(next, method) }
	switch d := d.(type) {
	case nil, Absent:
		return KnownMethod(DefaultMethods(), method)
	case Bool:
		return future.Resolved(Verdict{Value: bool(d)})
	case Set:
		return future.Resolved(Verdict{Value: d.ContainsFold(method)})
	case Symbol:
		return KnownMethod(NewSet(string(d)), method)
	case Func:
		raw, err := invoke(d, method)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved(Verdict{})
	}
}

// RequestURITooLong reports whether uri exceeds the limit. A number is the
// longest accepted length.
func RequestURITooLong(d Descriptor, uri string) *future.Future[Verdict] {
	again := func(next Descriptor) *future.Future[Verdict] { return RequestURITooLong(next, uri) }
	switch d := d.(type) {
	case nil, Absent:
		return RequestURITooLong(Number(DefaultURILimit), uri)
	case Bool:
		return future.Resolved(Verdict{Value: bool(d)})
	case Number:
		return RequestURITooLong(Bool(float64(len(uri)) > float64(d)), uri)
	case Func:
		raw, err := invoke(d, uri)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved(Verdict{})
	}
}

// AllowedMethods returns the methods the resource accepts.
func AllowedMethods(d Descriptor) *future.Future[Set] {
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved(DefaultMethods())
	case Set:
		return future.Resolved(d)
	case Symbol:
		return future.Resolved(NewSet(string(d)))
	case Seq:
		return AllowedMethods(d.asSet())
	case Func:
		raw, err := invoke(d, nil)
		return normalize(raw, err, AllowedMethods)
	case Deferred:
		return await(d.Value, AllowedMethods)
	default:
		return future.Resolved[Set](nil)
	}
}
