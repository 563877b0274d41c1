package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"rudder/internal/logger"
)

// Watch re-reads the config file whenever it changes on disk and hands the
// freshly validated result to onChange. A file that fails to parse or
// validate is ignored; the previous config stays live. The returned stop
// function is currently a no-op placeholder (viper owns the watcher
// goroutine) but keeps the call sites honest.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	v.OnConfigChange(func(evt fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := v.ReadInConfig(); err != nil {
			logger.Warnf("config reload: re-read failed for %s: %v", evt.Name, err)
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warnf("config reload: keeping previous config: %v", err)
			return
		}
		logger.Infof("config reloaded from %s", evt.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return func() {}, nil
}
