package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Target     TargetConfig     `yaml:"target"`
	Automation AutomationConfig `yaml:"automation"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Output     OutputConfig     `yaml:"output"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// 驱动：sqlite（默认，本地单机实验）/ mysql（共享实验库）
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

// TargetConfig 被自动化的外部聊天应用（如 ChatGPT 桌面端）
type TargetConfig struct {
	AppName          string `yaml:"app_name"`
	NewChatPerSample bool   `yaml:"new_chat_per_sample"`
	// 响应面板截屏区域（屏幕坐标）
	ResponseRegion Region `yaml:"response_region"`
	// 右键菜单里“拷贝图像”相对右键点的偏移
	CopyImageOffset Offset `yaml:"copy_image_offset"`
}

type Region struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

type Offset struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// AutomationConfig 轮询/重试参数（界面没有完成回调，只能靠这些调）
type AutomationConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	MaxWaitSec     int `yaml:"max_wait_sec"`
	// 判定“渲染完成”所需的连续不变轮询次数
	StablePolls   int     `yaml:"stable_polls"`
	MaxRetries    int     `yaml:"max_retries"`
	RetryBaseSec  int     `yaml:"retry_base_sec"`
	RetryFactor   float64 `yaml:"retry_factor"`
	RetryCapSec   int     `yaml:"retry_cap_sec"`
	PacingSec     int     `yaml:"pacing_sec"`
	SubmitDelayMS int     `yaml:"submit_delay_ms"`
}

type DatasetConfig struct {
	ImageDir       string   `yaml:"image_dir"`
	GroundTruthDir string   `yaml:"ground_truth_dir"`
	Extensions     []string `yaml:"extensions"`
	// 超过该数量时按 seed 随机抽样（0 表示全量）
	SampleLimit int   `yaml:"sample_limit"`
	Seed        int64 `yaml:"seed"`
}

type PromptConfig struct {
	Dir             string `yaml:"dir"`
	DefaultTemplate string `yaml:"default_template"`
	// 模板 -> 期望的深度图通道模式：grayscale/colormap
	Modes      map[string]string `yaml:"modes"`
	FewShotDir string            `yaml:"few_shot_dir"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults 填充零值字段（默认值与原自动化脚本保持一致）
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "depth_test.db"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if v := os.Getenv("DEPTH_TEST_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if c.Target.AppName == "" {
		c.Target.AppName = "ChatGPT"
	}
	if c.Target.CopyImageOffset.X == 0 && c.Target.CopyImageOffset.Y == 0 {
		c.Target.CopyImageOffset = Offset{X: 30, Y: 0}
	}
	if c.Automation.PollIntervalMS == 0 {
		c.Automation.PollIntervalMS = 2000
	}
	if c.Automation.MaxWaitSec == 0 {
		c.Automation.MaxWaitSec = 120
	}
	if c.Automation.StablePolls == 0 {
		c.Automation.StablePolls = 2
	}
	if c.Automation.MaxRetries == 0 {
		c.Automation.MaxRetries = 3
	}
	if c.Automation.RetryBaseSec == 0 {
		c.Automation.RetryBaseSec = 3
	}
	if c.Automation.RetryFactor == 0 {
		c.Automation.RetryFactor = 2
	}
	if c.Automation.RetryCapSec == 0 {
		c.Automation.RetryCapSec = 30
	}
	if c.Automation.PacingSec == 0 {
		c.Automation.PacingSec = 1
	}
	if c.Automation.SubmitDelayMS == 0 {
		c.Automation.SubmitDelayMS = 1000
	}
	if len(c.Dataset.Extensions) == 0 {
		c.Dataset.Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"}
	}
	if c.Prompt.Dir == "" {
		c.Prompt.Dir = "prompts"
	}
	if c.Prompt.DefaultTemplate == "" {
		c.Prompt.DefaultTemplate = "grayscale_depth"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "data/results"
	}
}

// ExpectedMode 返回模板对应的深度图通道模式，未配置时默认 grayscale
func (c *Config) ExpectedMode(template string) string {
	if m, ok := c.Prompt.Modes[template]; ok && m != "" {
		return m
	}
	return "grayscale"
}
