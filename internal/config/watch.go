package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file on change and hands the fresh config to
// onChange. Oracle settings are the intended consumer: operators fix a
// partial configuration on disk and the running server picks it up without a
// restart. The returned stop function releases the watcher.
func Watch(filename string, log *zap.Logger, onChange func(*Config)) (func(), error) {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filename); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(filename)
				if err != nil {
					log.Warn("config reload failed", zap.Error(err))
					continue
				}
				log.Info("config reloaded", zap.String("file", filename))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return func() { _ = watcher.Close() }, nil
}
