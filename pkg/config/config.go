package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/profiling"
)

const envPrefix = "CTAMAP"

type Config struct {
	Bus       BusConfig
	Taxi      TaxiConfig
	Rail      RailConfig
	Routes    RoutesConfig
	Scale     ScaleConfig
	Map       MapConfig
	Fetch     FetchConfig
	Output    OutputConfig
	Serve     ServeConfig
	Log       LogConfig
	Telemetry ctaotel.Settings
	Profiling profiling.Settings

	// DropMissingCoords drops rows without coordinates for every category,
	// not only taxi.
	DropMissingCoords bool
}

type BusConfig struct {
	Date       string  `validate:"required,datetime=2006-01-02"`
	DayType    string  `validate:"required,oneof=Weekday Saturday Sunday"`
	Threshold  float64 `validate:"gte=0"`
	LocalCSV   string
	API        string  `validate:"required,url"`
	WindowDays float64 `validate:"gt=0"`
}

type TaxiConfig struct {
	API        string  `validate:"required,url"`
	WindowDays float64 `validate:"gt=0"`
}

type RailConfig struct {
	StationsCSV string
	API         string  `validate:"required,url"`
	WindowDays  float64 `validate:"gt=0"`
}

type RoutesConfig struct {
	BusKMZ  string
	RailKMZ string
}

type ScaleConfig struct {
	Mode        string  `validate:"oneof=sqrt fixed sqrt_clamped linear"`
	Basis       string  `validate:"oneof=per_day raw"`
	BaseRadius  float64 `validate:"gte=0"`
	MaxRadius   float64 `validate:"gtfield=BaseRadius"`
	FixedRadius float64 `validate:"gt=0"`
}

type MapConfig struct {
	CenterLat float64 `validate:"gte=-90,lte=90"`
	CenterLon float64 `validate:"gte=-180,lte=180"`
	Zoom      int     `validate:"gte=1,lte=19"`
	TileURL   string  `validate:"required"`
	TileAttr  string
}

type FetchConfig struct {
	Token    string
	RowLimit int           `validate:"gt=0"`
	PageSize int           `validate:"gt=0"`
	Timeout  time.Duration `validate:"gt=0"`
	CacheTTL time.Duration `validate:"gt=0"`
}

type OutputConfig struct {
	Variant string `validate:"oneof=combined bus rail all"`
	Dir     string `validate:"required"`
	File    string
	GeoJSON string
	DryRun  bool
}

type ServeConfig struct {
	Enabled bool
	Addr    string `validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Level  string
	Format string `validate:"omitempty,oneof=text json"`
}

var validate = validator.New()

// Load reads .env (if present), the optional config file and CTAMAP_* environment
// variables, in increasing order of precedence. Defaults reproduce the
// October 2012 weekday bus snapshot with the 50,000 row fetch limit.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindStandardEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Fetch.PageSize > c.Fetch.RowLimit {
		return fmt.Errorf("invalid config: fetch.page_size %d exceeds fetch.row_limit %d", c.Fetch.PageSize, c.Fetch.RowLimit)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.date", "2012-10-01")
	v.SetDefault("bus.daytype", "Weekday")
	v.SetDefault("bus.threshold", 100)
	v.SetDefault("bus.local_csv", "CTA_-_Ridership_-_Avg._Weekday_Bus_Stop_Boardings_in_October_2012_20250426.csv")
	v.SetDefault("bus.api", "https://data.cityofchicago.org/resource/t2qc-9pjd.csv")
	v.SetDefault("bus.window_days", 1)

	v.SetDefault("taxi.api", "https://data.cityofchicago.org/resource/ajtu-isnz.json")
	v.SetDefault("taxi.window_days", 5)

	v.SetDefault("rail.stations_csv", "CTA_-_System_Information_-_List_of__L__Stops_20250426.csv")
	v.SetDefault("rail.api", "https://data.cityofchicago.org/resource/5neh-572f.json")
	v.SetDefault("rail.window_days", 353)

	v.SetDefault("routes.bus_kmz", "CTA_BusRoutes.kmz")
	v.SetDefault("routes.rail_kmz", "CTA_RailLines.kmz")

	v.SetDefault("scale.mode", "sqrt")
	v.SetDefault("scale.basis", "per_day")
	v.SetDefault("scale.base_radius", 2)
	v.SetDefault("scale.max_radius", 20)
	v.SetDefault("scale.fixed_radius", 6)
	v.SetDefault("drop_missing_coords", false)

	v.SetDefault("map.center_lat", 41.88)
	v.SetDefault("map.center_lon", -87.63)
	v.SetDefault("map.zoom", 11)
	v.SetDefault("map.tile_url", "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png")
	v.SetDefault("map.tile_attr", "&copy; OpenStreetMap contributors &copy; CARTO")

	v.SetDefault("fetch.row_limit", 50000)
	v.SetDefault("fetch.page_size", 50000)
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.cache_ttl", 10*time.Minute)

	v.SetDefault("output.variant", "combined")
	v.SetDefault("output.dir", ".")

	v.SetDefault("serve.addr", "127.0.0.1:8050")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.protocol", "http/protobuf")
	v.SetDefault("telemetry.timeout", 10*time.Second)
	v.SetDefault("telemetry.environment", "local")
}

// bindStandardEnv maps the conventional unprefixed variables onto config keys.
func bindStandardEnv(v *viper.Viper) {
	_ = v.BindEnv("fetch.token", "SOCRATA_TOKEN")
	_ = v.BindEnv("log.level", "LOG_LEVEL", "CTAMAP_LOG_LEVEL")

	_ = v.BindEnv("telemetry.tracing_enabled", "OTEL_TRACING_ENABLED")
	_ = v.BindEnv("telemetry.metrics_enabled", "OTEL_METRICS_ENABLED")
	_ = v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("telemetry.protocol", "OTEL_EXPORTER_OTLP_PROTOCOL")
	_ = v.BindEnv("telemetry.headers", "OTEL_EXPORTER_OTLP_HEADERS")
	_ = v.BindEnv("telemetry.timeout", "OTEL_EXPORTER_OTLP_TIMEOUT")
	_ = v.BindEnv("telemetry.insecure", "OTEL_EXPORTER_OTLP_INSECURE")
	_ = v.BindEnv("telemetry.compression", "OTEL_EXPORTER_OTLP_COMPRESSION")
	_ = v.BindEnv("telemetry.environment", "OTEL_DEPLOYMENT_ENVIRONMENT")

	_ = v.BindEnv("profiling.enabled", "PYROSCOPE_PROFILING_ENABLED")
	_ = v.BindEnv("profiling.server_address", "PYROSCOPE_SERVER_ADDRESS")
	_ = v.BindEnv("profiling.application_name", "PYROSCOPE_APPLICATION_NAME")
	_ = v.BindEnv("profiling.basic_auth_user", "PYROSCOPE_BASIC_AUTH_USER")
	_ = v.BindEnv("profiling.basic_auth_password", "PYROSCOPE_BASIC_AUTH_PASSWORD")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Bus: BusConfig{
			Date:       v.GetString("bus.date"),
			DayType:    v.GetString("bus.daytype"),
			Threshold:  v.GetFloat64("bus.threshold"),
			LocalCSV:   v.GetString("bus.local_csv"),
			API:        v.GetString("bus.api"),
			WindowDays: v.GetFloat64("bus.window_days"),
		},
		Taxi: TaxiConfig{
			API:        v.GetString("taxi.api"),
			WindowDays: v.GetFloat64("taxi.window_days"),
		},
		Rail: RailConfig{
			StationsCSV: v.GetString("rail.stations_csv"),
			API:         v.GetString("rail.api"),
			WindowDays:  v.GetFloat64("rail.window_days"),
		},
		Routes: RoutesConfig{
			BusKMZ:  v.GetString("routes.bus_kmz"),
			RailKMZ: v.GetString("routes.rail_kmz"),
		},
		Scale: ScaleConfig{
			Mode:        v.GetString("scale.mode"),
			Basis:       v.GetString("scale.basis"),
			BaseRadius:  v.GetFloat64("scale.base_radius"),
			MaxRadius:   v.GetFloat64("scale.max_radius"),
			FixedRadius: v.GetFloat64("scale.fixed_radius"),
		},
		Map: MapConfig{
			CenterLat: v.GetFloat64("map.center_lat"),
			CenterLon: v.GetFloat64("map.center_lon"),
			Zoom:      v.GetInt("map.zoom"),
			TileURL:   v.GetString("map.tile_url"),
			TileAttr:  v.GetString("map.tile_attr"),
		},
		Fetch: FetchConfig{
			Token:    v.GetString("fetch.token"),
			RowLimit: v.GetInt("fetch.row_limit"),
			PageSize: v.GetInt("fetch.page_size"),
			Timeout:  v.GetDuration("fetch.timeout"),
			CacheTTL: v.GetDuration("fetch.cache_ttl"),
		},
		Output: OutputConfig{
			Variant: v.GetString("output.variant"),
			Dir:     v.GetString("output.dir"),
			File:    v.GetString("output.file"),
			GeoJSON: v.GetString("output.geojson"),
			DryRun:  v.GetBool("output.dry_run"),
		},
		Serve: ServeConfig{
			Enabled: v.GetBool("serve.enabled"),
			Addr:    v.GetString("serve.addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Telemetry: ctaotel.Settings{
			TracingEnabled: v.GetBool("telemetry.tracing_enabled"),
			MetricsEnabled: v.GetBool("telemetry.metrics_enabled"),
			Endpoint:       v.GetString("telemetry.endpoint"),
			Protocol:       v.GetString("telemetry.protocol"),
			Headers:        v.GetString("telemetry.headers"),
			Timeout:        v.GetDuration("telemetry.timeout"),
			Insecure:       v.GetString("telemetry.insecure"),
			Compression:    v.GetString("telemetry.compression"),
			Environment:    v.GetString("telemetry.environment"),
		},
		Profiling: profiling.Settings{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
		DropMissingCoords: v.GetBool("drop_missing_coords"),
	}
}
