package services

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Start runs an initial scan and watches the footage tree for new files.
// Camera files for one segment arrive over a few seconds, so rescans are
// debounced instead of firing per file.
func (s *IndexerService) Start() *fsnotify.Watcher {
	go s.ScanAll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("failed to create footage watcher")
		return nil
	}

	rescan := make(chan struct{}, 1)
	go func() {
		var timer *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create {
					// New directories need their own watch.
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						watcher.Add(event.Name)
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(3*time.Second, func() {
						select {
						case rescan <- struct{}{}:
						default:
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("footage watcher error")
			}
		}
	}()

	go func() {
		for range rescan {
			s.ScanAll()
		}
	}()

	if err := watcher.Add(s.FootagePath); err != nil {
		log.Warn().Err(err).Str("path", s.FootagePath).Msg("failed to watch footage path")
	}

	// fsnotify is not recursive; walk and add every subdirectory.
	filepath.Walk(s.FootagePath, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			watcher.Add(path)
		}
		return nil
	})

	return watcher
}
