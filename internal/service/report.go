package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"depth-test/internal/model"
)

// RenderRunMarkdown 生成批次报告（落在输出目录里，给人看的那份）
func RenderRunMarkdown(run *model.BatchRun, result *BatchRunResult) string {
	var b strings.Builder
	b.WriteString("# 深度图批量实验报告\n\n")
	b.WriteString(fmt.Sprintf("- run_id: %d\n", run.ID))
	b.WriteString(fmt.Sprintf("- dataset: %s\n", run.DatasetDir))
	b.WriteString(fmt.Sprintf("- template: %s\n", run.Template))
	b.WriteString(fmt.Sprintf("- max_retries: %d\n", run.MaxRetries))
	b.WriteString(fmt.Sprintf("- max_wait_sec: %d\n", run.MaxWaitSec))
	b.WriteString(fmt.Sprintf("- status: %s\n", run.Status))
	b.WriteString(fmt.Sprintf("- created_at: %s\n\n", run.CreatedAt.Format(time.RFC3339)))

	b.WriteString("## 汇总\n\n")
	b.WriteString(fmt.Sprintf("- 样本总数: %d\n", result.SampleCount))
	b.WriteString(fmt.Sprintf("- 成功: %d\n", result.Succeeded))
	b.WriteString(fmt.Sprintf("- 失败: %d\n", result.Failed))
	b.WriteString(fmt.Sprintf("- 跳过（已有结果）: %d\n\n", result.Skipped))

	if result.Stats != nil && result.Stats.N > 0 {
		b.WriteString("## 统计\n\n")
		b.WriteString(fmt.Sprintf("- 成功率: %.3f\n", result.Stats.SuccessRate))
		b.WriteString(fmt.Sprintf("- 平均尝试次数: %.2f\n", result.Stats.AvgAttempts))
		b.WriteString(fmt.Sprintf("- 平均单样本耗时: %.1fs\n\n", result.Stats.AvgDurationSec))
	}

	b.WriteString("## 样本结果\n\n")
	b.WriteString("| sample | outcome | attempts | 备注 |\n")
	b.WriteString("| --- | --- | ---: | --- |\n")
	for _, o := range result.Outcomes {
		note := o.FailureReason
		if o.Outcome == model.TrialSucceeded {
			note = o.ArtifactPath
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n", o.SampleID, o.Outcome, o.Attempts, note))
	}
	b.WriteString("\n")

	if result.Stats != nil && len(result.Stats.FailureReasons) > 0 {
		b.WriteString("## 失败原因分布\n\n")
		reasons := make([]string, 0, len(result.Stats.FailureReasons))
		for r := range result.Stats.FailureReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			b.WriteString(fmt.Sprintf("- %s: %d\n", r, result.Stats.FailureReasons[r]))
		}
		b.WriteString("\n")
	}

	if len(result.Errors) > 0 {
		b.WriteString("## 执行错误（如有）\n\n")
		for _, e := range result.Errors {
			b.WriteString(fmt.Sprintf("- %s\n", e))
		}
	}
	return b.String()
}
