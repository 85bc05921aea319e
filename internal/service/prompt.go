package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"depth-test/internal/config"
)

// PromptBundle 某个模板的完整提示词包：正文 + few-shot 示例对 + 期望的输出模式。
// 核心流程把它当不透明的字符串和图片包用。
type PromptBundle struct {
	Template string
	Text     string
	Mode     string
	FewShot  []FewShotPair
}

// FewShotPair 一对示例：RGB 图及其深度图
type FewShotPair struct {
	ImagePath string
	DepthPath string
}

// PromptLibrary 提示词模板加载器：<dir>/<template>.txt
type PromptLibrary struct {
	cfg config.PromptConfig
	// 模板 -> 期望通道模式
	modeOf func(template string) string
}

func NewPromptLibrary(cfg config.PromptConfig, modeOf func(template string) string) *PromptLibrary {
	return &PromptLibrary{cfg: cfg, modeOf: modeOf}
}

func (l *PromptLibrary) Load(template string) (*PromptBundle, error) {
	if template == "" {
		template = l.cfg.DefaultTemplate
	}
	path := filepath.Join(l.cfg.Dir, template+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取提示词模板失败: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("提示词模板为空: %s", path)
	}

	return &PromptBundle{
		Template: template,
		Text:     text,
		Mode:     l.modeOf(template),
		FewShot:  l.loadFewShot(template),
	}, nil
}

// loadFewShot 扫描 <few_shot_dir>/<template>/ 下的 *_rgb.* / *_depth.* 成对示例。
// 目录不存在或没有成对文件时返回空（few-shot 是可选的）。
func (l *PromptLibrary) loadFewShot(template string) []FewShotPair {
	if l.cfg.FewShotDir == "" {
		return nil
	}
	dir := filepath.Join(l.cfg.FewShotDir, template)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	rgb := map[string]string{}
	depth := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		base := strings.TrimSuffix(name, filepath.Ext(name))
		switch {
		case strings.HasSuffix(base, "_rgb"):
			rgb[strings.TrimSuffix(base, "_rgb")] = filepath.Join(dir, name)
		case strings.HasSuffix(base, "_depth"):
			depth[strings.TrimSuffix(base, "_depth")] = filepath.Join(dir, name)
		}
	}

	var keys []string
	for k := range rgb {
		if _, ok := depth[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]FewShotPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, FewShotPair{ImagePath: rgb[k], DepthPath: depth[k]})
	}
	return pairs
}
