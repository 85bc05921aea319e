package service

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"depth-test/internal/config"
)

// Sample 一个评测输入：RGB 图 + 可选 ground truth 深度图。加载后不可变。
type Sample struct {
	ID              string
	ImagePath       string
	GroundTruthPath string
}

// LoadSamples 扫描数据集目录，返回按 sample id 排序的样本序列。
// 超过 sample_limit 时按 seed 随机抽样再排序（与原脚本行为一致，保证可复现）。
func LoadSamples(cfg config.DatasetConfig) ([]Sample, error) {
	entries, err := os.ReadDir(cfg.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("读取数据集目录失败: %w", err)
	}

	extSet := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extSet[strings.ToLower(ext)] = true
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if extSet[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("数据集目录中没有有效图片: %s", cfg.ImageDir)
	}
	sort.Strings(names)

	if cfg.SampleLimit > 0 && len(names) > cfg.SampleLimit {
		rng := rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
		names = names[:cfg.SampleLimit]
		sort.Strings(names)
	}

	samples := make([]Sample, 0, len(names))
	for _, name := range names {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		samples = append(samples, Sample{
			ID:              base,
			ImagePath:       filepath.Join(cfg.ImageDir, name),
			GroundTruthPath: findGroundTruth(cfg.GroundTruthDir, base, cfg.Extensions),
		})
	}
	return samples, nil
}

// findGroundTruth 在 ground truth 目录里找同名文件（任意已知扩展名），找不到返回空串
func findGroundTruth(dir, base string, extensions []string) string {
	if dir == "" {
		return ""
	}
	for _, ext := range extensions {
		path := filepath.Join(dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
