// Package release defines the data model shared by every update source.
//
// A Provider inspects units of one kind (containers, packages, ...) and
// yields a Discovery per unit per scan. Discoveries are immutable once
// yielded: rescans and update attempts produce new instances, and only the
// owning provider creates them. Every Discovery produced by one scan carries
// the same Session token, which is how stale retained topics are told apart
// from current ones.
//
// # Usage
//
//	session := release.NewSession()
//	for d := range provider.Scan(ctx, session) {
//	    fmt.Println(d.Name, d.CurrentVersion, d.LatestVersion)
//	}
package release
