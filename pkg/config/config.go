package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App   AppConfig
	SUNAT SUNATConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// SUNATConfig configuración para el envío de comprobantes electrónicos a SUNAT.
type SUNATConfig struct {
	RUC          string        // RUC del emisor (11 dígitos)
	Username     string        // Usuario SOL secundario (sin el RUC)
	Password     string        // Clave SOL
	UseBeta      bool          // true: ambiente de homologación e-beta
	Endpoint     string        // URL explícita del billService; vacío = según UseBeta
	CertPath     string        // Ruta al contenedor PKCS#12 (.pfx/.p12)
	CertPassword string        // Contraseña del contenedor
	Timeout      time.Duration // Timeout de red por llamada SOAP
}

// BetaURL y ProductionURL son los endpoints oficiales del billService SUNAT.
const (
	BetaURL       = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	ProductionURL = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"
)

// ServiceURL devuelve el endpoint a usar: Endpoint explícito si está definido,
// si no el oficial según UseBeta.
func (c SUNATConfig) ServiceURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.UseBeta {
		return BetaURL
	}
	return ProductionURL
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo .env).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, SUNAT_RUC, SUNAT_USERNAME, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "conversor-ubl-sunat"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		SUNAT: SUNATConfig{
			RUC:          getString(v, "SUNAT_RUC", ""),
			Username:     getString(v, "SUNAT_USERNAME", "MODDATOS"),
			Password:     getString(v, "SUNAT_PASSWORD", "moddatos"),
			UseBeta:      getBool(v, "SUNAT_USE_BETA", true),
			Endpoint:     getString(v, "SUNAT_ENDPOINT", ""),
			CertPath:     getString(v, "SUNAT_CERT_PATH", ""),
			CertPassword: getString(v, "SUNAT_CERT_PASSWORD", ""),
			Timeout:      time.Duration(getInt(v, "SUNAT_TIMEOUT_SECONDS", 60)) * time.Second,
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
