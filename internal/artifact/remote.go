package artifact

import (
	"errors"
	"slices"
	"sort"

	"github.com/rafaeljc/bifrost/internal/delivery"
)

// ErrNoArtifact is returned when a check needs an artifact and none is loaded.
var ErrNoArtifact = errors.New("no artifact available")

// RemoteDependency lists the requested mboxes and views the artifact cannot
// decide locally.
type RemoteDependency struct {
	RemoteNeeded bool     `json:"remoteNeeded"`
	RemoteMboxes []string `json:"remoteMboxes"`
	RemoteViews  []string `json:"remoteViews"`
}

// HasRemoteDependency reports which requested mboxes and views require the
// remote service. An mbox is remote when the artifact lists it as remote or
// does not list it as local. A prefetch for all views (a view request with no
// name) needs every remote view.
func HasRemoteDependency(a *Artifact, req *delivery.Request) (RemoteDependency, error) {
	if a == nil {
		return RemoteDependency{}, ErrNoArtifact
	}

	mboxes := remoteNames(requestedMboxes(req), a.RemoteMboxes, a.LocalMboxes)

	var views []string
	requested, allViews := requestedViews(req)
	if allViews {
		views = setToSorted(toSet(a.RemoteViews))
	} else {
		views = remoteNames(requested, a.RemoteViews, a.LocalViews)
	}

	return RemoteDependency{
		RemoteNeeded: len(mboxes) > 0 || len(views) > 0,
		RemoteMboxes: mboxes,
		RemoteViews:  views,
	}, nil
}

func remoteNames(requested map[string]struct{}, remote, local []string) []string {
	out := make(map[string]struct{})
	for name := range requested {
		if slices.Contains(remote, name) || !slices.Contains(local, name) {
			out[name] = struct{}{}
		}
	}
	return setToSorted(out)
}

func requestedMboxes(req *delivery.Request) map[string]struct{} {
	names := make(map[string]struct{})
	if req == nil {
		return names
	}
	if req.Execute != nil {
		for _, m := range req.Execute.Mboxes {
			names[m.Name] = struct{}{}
		}
	}
	if req.Prefetch != nil {
		for _, m := range req.Prefetch.Mboxes {
			names[m.Name] = struct{}{}
		}
	}
	return names
}

// requestedViews returns the named views of a prefetch request, and whether
// any view request asks for all views.
func requestedViews(req *delivery.Request) (map[string]struct{}, bool) {
	names := make(map[string]struct{})
	if req == nil || req.Prefetch == nil {
		return names, false
	}

	all := false
	for _, v := range req.Prefetch.Views {
		if v.Name == "" {
			all = true
			continue
		}
		names[v.Name] = struct{}{}
	}
	return names, all
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[s] = struct{}{}
	}
	return out
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
