package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Tuning holds operational knobs that can change without a restart.
type Tuning struct {
	Retry       RetryTuning       `mapstructure:"retry"`
	Fulfillment FulfillmentTuning `mapstructure:"fulfillment"`
	Idempotency IdempotencyTuning `mapstructure:"idempotency"`
	CheckIn     CheckInTuning     `mapstructure:"checkin"`
	Sweeper     SweeperTuning     `mapstructure:"sweeper"`
}

type RetryTuning struct {
	MaxAttempts         int           `mapstructure:"maxAttempts"`
	InitialInterval     time.Duration `mapstructure:"initialInterval"`
	MaxInterval         time.Duration `mapstructure:"maxInterval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomizationFactor"`
}

type FulfillmentTuning struct {
	ChunkSize       int           `mapstructure:"chunkSize"`
	QRCacheTTL      time.Duration `mapstructure:"qrCacheTTL"`
	// DeliveryLockTTL bounds one ticket's send, retries included.
	DeliveryLockTTL time.Duration `mapstructure:"deliveryLockTTL"`
}

type IdempotencyTuning struct {
	ResultTTL time.Duration `mapstructure:"resultTTL"`
	LockWait  time.Duration `mapstructure:"lockWait"`
	LockTTL   time.Duration `mapstructure:"lockTTL"`
}

type CheckInTuning struct {
	Window      time.Duration `mapstructure:"window"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
	LockWait    time.Duration `mapstructure:"lockWait"`
	LockTTL     time.Duration `mapstructure:"lockTTL"`
}

type SweeperTuning struct {
	Interval time.Duration `mapstructure:"interval"`
	Grace    time.Duration `mapstructure:"grace"`
	Batch    int           `mapstructure:"batch"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Retry: RetryTuning{
			MaxAttempts:         3,
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         10 * time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.5,
		},
		Fulfillment: FulfillmentTuning{
			ChunkSize:       50,
			QRCacheTTL:      time.Hour,
			DeliveryLockTTL: 2 * time.Minute,
		},
		Idempotency: IdempotencyTuning{
			ResultTTL: 30 * time.Minute,
			LockWait:  10 * time.Second,
			LockTTL:   30 * time.Second,
		},
		CheckIn: CheckInTuning{
			Window:      time.Minute,
			MaxAttempts: 5,
			LockWait:    10 * time.Second,
			LockTTL:     10 * time.Second,
		},
		Sweeper: SweeperTuning{
			Interval: time.Minute,
			Grace:    5 * time.Minute,
			Batch:    100,
		},
	}
}

// TuningHolder serves the latest valid Tuning snapshot.
type TuningHolder struct {
	current atomic.Value // holds Tuning
}

// NewStaticTuning wraps a fixed Tuning, mostly for tests.
func NewStaticTuning(t Tuning) *TuningHolder {
	holder := &TuningHolder{}
	holder.current.Store(t)
	return holder
}

func NewTuningHolder(cfg Config) (*TuningHolder, error) {
	v := viper.New()

	if cfg.TuningPath != "" {
		v.SetConfigFile(cfg.TuningPath)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/ticketing")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TICKETING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setTuningDefaults(v, DefaultTuning())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		// an explicit TUNING_PATH that does not exist is an error, a missing default file is not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var tuning Tuning
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, err
	}
	if err := validateTuning(tuning); err != nil {
		return nil, err
	}

	holder := NewStaticTuning(tuning)

	if fileLoaded && cfg.TuningHotReload {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Tuning
			if err := v.Unmarshal(&updated); err != nil {
				log.Printf("[tuning] reload failed: %v", err)
				return
			}
			if err := validateTuning(updated); err != nil {
				log.Printf("[tuning] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[tuning] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *TuningHolder) Get() Tuning {
	if h == nil {
		return DefaultTuning()
	}
	t, ok := h.current.Load().(Tuning)
	if !ok {
		return DefaultTuning()
	}
	return t
}

func setTuningDefaults(v *viper.Viper, d Tuning) {
	v.SetDefault("retry.maxAttempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initialInterval", d.Retry.InitialInterval)
	v.SetDefault("retry.maxInterval", d.Retry.MaxInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.randomizationFactor", d.Retry.RandomizationFactor)
	v.SetDefault("fulfillment.chunkSize", d.Fulfillment.ChunkSize)
	v.SetDefault("fulfillment.qrCacheTTL", d.Fulfillment.QRCacheTTL)
	v.SetDefault("fulfillment.deliveryLockTTL", d.Fulfillment.DeliveryLockTTL)
	v.SetDefault("idempotency.resultTTL", d.Idempotency.ResultTTL)
	v.SetDefault("idempotency.lockWait", d.Idempotency.LockWait)
	v.SetDefault("idempotency.lockTTL", d.Idempotency.LockTTL)
	v.SetDefault("checkin.window", d.CheckIn.Window)
	v.SetDefault("checkin.maxAttempts", d.CheckIn.MaxAttempts)
	v.SetDefault("checkin.lockWait", d.CheckIn.LockWait)
	v.SetDefault("checkin.lockTTL", d.CheckIn.LockTTL)
	v.SetDefault("sweeper.interval", d.Sweeper.Interval)
	v.SetDefault("sweeper.grace", d.Sweeper.Grace)
	v.SetDefault("sweeper.batch", d.Sweeper.Batch)
}

func validateTuning(t Tuning) error {
	if t.Retry.MaxAttempts < 1 {
		return errors.New("retry.maxAttempts must be at least 1")
	}
	if t.Retry.InitialInterval <= 0 || t.Retry.MaxInterval < t.Retry.InitialInterval {
		return errors.New("retry intervals are invalid")
	}
	if t.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	if t.Retry.RandomizationFactor < 0 || t.Retry.RandomizationFactor > 1 {
		return errors.New("retry.randomizationFactor must be within [0,1]")
	}
	if t.Fulfillment.ChunkSize < 1 {
		return errors.New("fulfillment.chunkSize must be positive")
	}
	if t.Fulfillment.DeliveryLockTTL <= 0 {
		return errors.New("fulfillment.deliveryLockTTL must be positive")
	}
	if t.Idempotency.ResultTTL <= 0 || t.Idempotency.LockWait <= 0 || t.Idempotency.LockTTL <= 0 {
		return errors.New("idempotency durations must be positive")
	}
	if t.CheckIn.Window <= 0 || t.CheckIn.MaxAttempts < 1 {
		return errors.New("checkin window and maxAttempts must be positive")
	}
	if t.Sweeper.Interval <= 0 || t.Sweeper.Batch < 1 {
		return errors.New("sweeper interval and batch must be positive")
	}
	return nil
}
