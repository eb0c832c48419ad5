// Package publish implements the release publisher: the only pipeline
// stage that talks to the outside world.
//
// A publish is triggered by exactly one event — a push to the mainline
// branch — and performs three hard-fail steps: load the assembled image
// archive into the daemon, tag it with the release reference, and push
// it. There is no retry at this layer; retry policy belongs to the CI
// orchestrator that invoked us.
package publish

import (
	"context"
	"fmt"
	"sync"

	"github.com/shinji-kodama/binforge/internal/model"
)

// RegistryClient abstracts the daemon/registry operations a publish
// needs. The production implementation is *docker.Client; tests inject a
// fake to exercise failure paths without a daemon.
type RegistryClient interface {
	// Load imports an OCI layout archive into the daemon.
	Load(ctx context.Context, archivePath string) error

	// Tag applies the target reference to the loaded image.
	Tag(ctx context.Context, source, target string) error

	// Push pushes ref to its registry under the given credentials.
	Push(ctx context.Context, ref string, creds model.Credentials) error
}

// Publisher pushes release images. It serializes pushes per image
// reference: two concurrent publishes of the same (image, tag) would race
// to overwrite the tag with different content, so "push under tag X" is
// mutually exclusive within this process. Cross-process exclusion is the
// CI runner's concern.
type Publisher struct {
	registry RegistryClient

	// mu guards refLocks.
	mu sync.Mutex

	// refLocks holds one mutex per image reference ever published by
	// this Publisher.
	refLocks map[string]*sync.Mutex
}

// New creates a Publisher using the given registry client.
func New(registry RegistryClient) *Publisher {
	return &Publisher{
		registry: registry,
		refLocks: make(map[string]*sync.Mutex),
	}
}

// CheckTrigger enforces the release trigger contract: only a push to the
// mainline branch publishes. The triggering ref comes from the CI event;
// anything else (feature branches, tags, manual runs against the wrong
// ref) is refused before any registry interaction.
func CheckTrigger(triggerRef, mainlineBranch string) error {
	if triggerRef == "" {
		return model.NewCLIError(model.ExitGeneralError,
			"no trigger ref supplied — publish must be invoked by a branch push event")
	}
	if triggerRef != mainlineBranch {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("publish is only triggered by pushes to %q, not %q", mainlineBranch, triggerRef))
	}
	return nil
}

// Publish loads archivePath, tags it with the release reference, and
// pushes it under creds. The archive's internal reference (from the
// layout index annotation) is srcRef — usually identical to the release
// reference, in which case the tag step is a no-op refresh.
//
// Each step is a hard-fail point: an error aborts the release and the
// registry's previous tag content stays visible to consumers, because
// registries update tags atomically and this method never retries or
// cleans up.
func (p *Publisher) Publish(ctx context.Context, rel model.Release, srcRef, archivePath string, creds model.Credentials) error {
	if err := rel.Validate(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid release", err)
	}
	if creds.Username == "" || creds.Token == "" {
		return model.NewCLIError(model.ExitPublishAuth,
			"registry credentials missing — supply a principal and token")
	}

	ref := rel.Reference()
	lock := p.refLock(ref)
	lock.Lock()
	defer lock.Unlock()

	if err := p.registry.Load(ctx, archivePath); err != nil {
		return err
	}
	if srcRef != ref {
		if err := p.registry.Tag(ctx, srcRef, ref); err != nil {
			return err
		}
	}
	return p.registry.Push(ctx, ref, creds)
}

// refLock returns the mutex for one image reference, creating it on
// first use.
func (p *Publisher) refLock(ref string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.refLocks[ref]
	if !ok {
		lock = &sync.Mutex{}
		p.refLocks[ref] = lock
	}
	return lock
}

// DeriveNamespace returns the registry namespace for a release: the
// invoking identity (the credential principal). Registries like ghcr.io
// scope repositories under the account that owns the token.
func DeriveNamespace(creds model.Credentials) (string, error) {
	if creds.Username == "" {
		return "", model.NewCLIError(model.ExitPublishAuth,
			"cannot derive registry namespace: no principal supplied")
	}
	return creds.Username, nil
}
