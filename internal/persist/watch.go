package persist

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
	"pkt.systems/webmux/schema"
)

// Watch delivers a notification whenever another process rewrites a profile
// blob in the store's directory. This is the cross-window change channel:
// every window debounce-writes the same blob and watches for rewrites by its
// siblings. Notifications are coalesced; a slow receiver sees at most one
// pending notification per profile.
func (s *Store) Watch(ctx context.Context) (<-chan schema.ProfileID, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	out := make(chan schema.ProfileID, 16)
	log := s.log
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Atomic saves land as a rename; editors may write in place.
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				profile, ok := s.ProfileForPath(event.Name)
				if !ok {
					continue
				}
				select {
				case out <- profile:
				default:
					log.Trace("state watch dropped", "profile", profile)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("state watch error", "err", err)
			}
		}
	}()
	return out, nil
}
