package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"depth-test/internal/config"
	"depth-test/internal/db"
	"depth-test/internal/model"
	"depth-test/internal/router"
	"depth-test/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	// .env 可覆盖数据库口令等敏感配置（没有也无所谓）
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "depth-test",
		Short: "自动化驱动聊天界面做深度图批量实验",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "配置文件路径")
	root.AddCommand(newRunCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var req service.BatchRunRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "跑一个批次：对数据集逐样本 提交->等待->捕获->落盘",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := setup()
			if err != nil {
				// 启动期致命失败（配置/数据库/剪贴板），非零退出
				return err
			}

			// Ctrl-C 优雅取消：当前样本记为失败，后续样本不再启动
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := svc.Batch.Run(ctx, req)
			if err != nil {
				// 目标应用不在/数据集不可读等启动期失败
				return err
			}

			// 个别样本失败不影响退出码：批次跑完就算完成
			fmt.Printf("批次 %d 完成：成功 %d，失败 %d，跳过 %d\n",
				result.RunID, result.Succeeded, result.Failed, result.Skipped)
			fmt.Printf("汇总: %s\n报告: %s\n", result.SummaryPath, result.ReportPath)
			for _, o := range result.Outcomes {
				if o.Outcome != model.TrialSucceeded {
					fmt.Printf("  失败 sample=%s attempts=%d reason=%s\n", o.SampleID, o.Attempts, o.FailureReason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DatasetDir, "dataset", "", "数据集目录（默认用配置文件里的）")
	cmd.Flags().StringVar(&req.OutputDir, "output", "", "输出目录（默认用配置文件里的）")
	cmd.Flags().StringVar(&req.Template, "template", "", "提示词模板名（默认用配置文件里的）")
	cmd.Flags().IntVar(&req.MaxRetries, "max-retries", 0, "单样本最大尝试次数")
	cmd.Flags().IntVar(&req.MaxWaitSec, "max-wait", 0, "单次等待上限（秒）")
	cmd.Flags().BoolVar(&req.Resume, "resume", false, "跳过已有成功产物的样本")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "随机抽样数量（0 为全量）")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "抽样随机种子")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务：浏览批次/结果，远程触发运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := setup()
			if err != nil {
				return err
			}

			r := router.SetupRouter(svc)
			addr := fmt.Sprintf(":%d", svc.Cfg.Server.Port)
			log.Printf("服务启动在 %s", addr)
			return r.Run(addr)
		},
	}
}

// setup 公共启动流程：配置 -> 数据库 -> 服务装配。任何一步失败都是致命的。
func setup() (*service.ServiceContext, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := db.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	svc, err := service.NewServiceContext(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化服务失败: %w", err)
	}
	return svc, nil
}
