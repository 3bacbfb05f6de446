package conf

import (
	"fmt"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
)

// Log 日志输出配置，未配置的字段使用默认值
type Log struct {
	Level    string `json:"level"`
	Format   string `json:"format"`
	FilePath string `json:"file_path"`
}

// Load 读取配置文件（或目录）并解析为 Bootstrap
func Load(path string) (*Bootstrap, error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, fmt.Errorf("scan config %s: %w", path, err)
	}
	return &bc, nil
}

// Validate 启动前检查必需配置：数据库、Alatau Pay 商户与密钥、Ticketon 地址
func (b *Bootstrap) Validate() error {
	if b.Data == nil || b.Data.Database == nil || b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.Payment == nil || b.Payment.AlatauPay == nil {
		return fmt.Errorf("payment.alatau_pay is required")
	}
	if ap := b.Payment.AlatauPay; ap.Merchant == "" || ap.Secret == "" {
		return fmt.Errorf("payment.alatau_pay.merchant and secret are required")
	}
	if b.Payment.Ticketon == nil || b.Payment.Ticketon.BaseURL == "" {
		return fmt.Errorf("payment.ticketon.base_url is required")
	}
	return nil
}

// LoggerConfig go-pkg/logger 配置；defaultFile 为进程各自的日志文件
func (l *Log) LoggerConfig(defaultFile string) *logger.Config {
	cfg := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      defaultFile,
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}
	if l == nil {
		return cfg
	}
	if l.Level != "" {
		cfg.Level = l.Level
	}
	if l.Format != "" {
		cfg.Format = l.Format
	}
	if l.FilePath != "" {
		cfg.FilePath = l.FilePath
	}
	return cfg
}
