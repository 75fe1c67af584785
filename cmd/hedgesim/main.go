package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	hedger "github.com/hedgeworks/uniswap-v4-hedger"
)

type simConfig struct {
	DBPath        string
	LogLevel      string
	Owner         string
	LP            string
	Trader        string
	Token0        string
	Token1        string
	Fee           int
	TickSpacing   int
	RangeLower    int
	RangeUpper    int
	ShiftLower    int
	ShiftUpper    int
	ILTriggerBps  int64
	SlippagePips  int64
	StrategyFloat int64
}

// loadConfig resolves settings from flags, HEDGESIM_* environment variables
// and an optional config file, in ascending priority of flag over file.
func loadConfig(cfgFile string, flags *pflag.FlagSet) (*simConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("HEDGESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "hedgesim.db")
	v.SetDefault("log-level", "info")
	v.SetDefault("owner", "0x0000000000000000000000000000000000000001")
	v.SetDefault("lp", "0x0000000000000000000000000000000000000002")
	v.SetDefault("trader", "0x0000000000000000000000000000000000000003")
	v.SetDefault("token0", "0x1000000000000000000000000000000000000001")
	v.SetDefault("token1", "0x2000000000000000000000000000000000000002")
	v.SetDefault("fee", 3000)
	v.SetDefault("tick-spacing", 10)
	v.SetDefault("range-lower", -100)
	v.SetDefault("range-upper", 100)
	v.SetDefault("shift-lower", 40)
	v.SetDefault("shift-upper", -40)
	v.SetDefault("il-trigger-bps", 50)
	v.SetDefault("slippage-pips", 20_000)
	v.SetDefault("strategy-float", 50_000)

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("hedgesim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &simConfig{
		DBPath:        v.GetString("db"),
		LogLevel:      v.GetString("log-level"),
		Owner:         v.GetString("owner"),
		LP:            v.GetString("lp"),
		Trader:        v.GetString("trader"),
		Token0:        v.GetString("token0"),
		Token1:        v.GetString("token1"),
		Fee:           v.GetInt("fee"),
		TickSpacing:   v.GetInt("tick-spacing"),
		RangeLower:    v.GetInt("range-lower"),
		RangeUpper:    v.GetInt("range-upper"),
		ShiftLower:    v.GetInt("shift-lower"),
		ShiftUpper:    v.GetInt("shift-upper"),
		ILTriggerBps:  v.GetInt64("il-trigger-bps"),
		SlippagePips:  v.GetInt64("slippage-pips"),
		StrategyFloat: v.GetInt64("strategy-float"),
	}, nil
}

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

func openDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// triggerFraction converts basis points to the Q96 fixed-point fraction the
// strategy config expects.
func triggerFraction(bps int64) decimal.Decimal {
	return hedger.Q96.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10_000)).RoundDown(0)
}

func fractionPct(fraction decimal.Decimal) string {
	return fraction.Mul(decimal.NewFromInt(100)).DivRound(hedger.Q96, 4).String()
}

// traderSwap runs one plain trade in its own window, settling the input leg
// from the trader's wallet and taking the output leg back to it.
func traderSwap(pm *hedger.PoolManager, key hedger.PoolKey, poolId, trader string, zeroForOne bool, amountIn decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var out0, out1 decimal.Decimal
	err := pm.Unlock(trader, hedger.ZERO, func(tx *hedger.PoolTx) error {
		a0, a1, err := tx.Swap(poolId, zeroForOne, amountIn, nil)
		if err != nil {
			return err
		}
		out0, out1 = a0, a1
		if zeroForOne {
			if err := tx.Settle(key.Currency0.Hex(), a0); err != nil {
				return err
			}
			return tx.Take(key.Currency1.Hex(), trader, a1.Neg())
		}
		if err := tx.Settle(key.Currency1.Hex(), a1); err != nil {
			return err
		}
		return tx.Take(key.Currency0.Hex(), trader, a0.Neg())
	})
	return out0, out1, err
}

func runDemo(cfg *simConfig) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(hedger.SessionModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	owner := common.HexToAddress(cfg.Owner).Hex()
	lp := common.HexToAddress(cfg.LP).Hex()
	trader := common.HexToAddress(cfg.Trader).Hex()
	token0 := common.HexToAddress(cfg.Token0)
	token1 := common.HexToAddress(cfg.Token1)
	if bytes.Compare(token0.Bytes(), token1.Bytes()) >= 0 {
		return fmt.Errorf("token0 %s must sort below token1 %s", token0.Hex(), token1.Hex())
	}

	pm := hedger.NewPoolManager()
	executor := hedger.NewSamePoolExecutor()
	executor.SlippagePips = cfg.SlippagePips
	strat := hedger.NewStrategy(pm, owner, hedger.WithExecutor(executor))

	unit := decimal.New(1, 18)
	fund := func(addr string, wholeTokens int64) {
		amount := decimal.NewFromInt(wholeTokens).Mul(unit)
		pm.FundWallet(token0.Hex(), addr, amount)
		pm.FundWallet(token1.Hex(), addr, amount)
	}
	fund(lp, 1_000_000)
	fund(trader, 1_000_000)
	fund(strat.Address(), cfg.StrategyFloat)

	key := hedger.PoolKey{
		Currency0:   token0,
		Currency1:   token1,
		Fee:         cfg.Fee,
		TickSpacing: cfg.TickSpacing,
	}
	poolConfig := hedger.PoolConfig{
		PositionRangeLower: cfg.RangeLower,
		PositionRangeUpper: cfg.RangeUpper,
		ShiftLowerDistance: cfg.ShiftLower,
		ShiftUpperDistance: cfg.ShiftUpper,
		IL0TriggerFraction: triggerFraction(cfg.ILTriggerBps),
		IL1TriggerFraction: triggerFraction(cfg.ILTriggerBps),
	}
	if err := strat.SetConfig(owner, key, poolConfig); err != nil {
		return err
	}

	tick, err := strat.InitializePool(owner, key, hedger.Q96)
	if err != nil {
		return err
	}
	poolId := strat.GetPoolId(key)
	logrus.WithFields(logrus.Fields{"pool": poolId, "tick": tick}).Info("pool initialized")

	res, err := strat.AddLiquidityUnits(lp, poolId, decimal.New(200_000, 18), hedger.ZERO)
	if err != nil {
		return fmt.Errorf("deposit liquidity units: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"liquidity": res.Liquidity, "amount0": res.Amount0, "amount1": res.Amount1,
	}).Info("LP deposited by liquidity units")

	res, err = strat.AddLiquidity(lp, poolId, decimal.New(1000, 18), decimal.New(1000, 18), hedger.ZERO)
	if err != nil {
		return fmt.Errorf("deposit token amounts: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"liquidity": res.Liquidity, "amount0": res.Amount0, "amount1": res.Amount1,
	}).Info("LP deposited by token amounts")

	a0, a1, err := traderSwap(pm, key, poolId, trader, false, decimal.New(5, 18))
	if err != nil {
		return fmt.Errorf("small trade: %w", err)
	}
	state, err := strat.PoolStateView(poolId)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"amount0": a0, "amount1": a1, "tick": state.LastKnownTick,
	}).Info("small trade, inside shift thresholds")

	shares := strat.SharesOf(poolId, lp)
	quarter := shares.Div(decimal.NewFromInt(4)).RoundDown(0)
	res, err = strat.WithdrawLiquidity(lp, poolId, quarter)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"shares": quarter, "amount0": res.Amount0, "amount1": res.Amount1,
	}).Info("LP withdrew a quarter of their shares")

	a0, a1, err = traderSwap(pm, key, poolId, trader, false, decimal.New(1000, 18))
	if err != nil {
		return fmt.Errorf("large trade: %w", err)
	}
	logrus.WithFields(logrus.Fields{"amount0": a0, "amount1": a1}).Info("large trade, drives the tick past the shift threshold")

	state, err = strat.PoolStateView(poolId)
	if err != nil {
		return err
	}
	last := strat.LastDispatch(poolId)
	logrus.WithFields(logrus.Fields{
		"tick":          state.LastKnownTick,
		"position":      fmt.Sprintf("[%d, %d]", state.CurrentPosition.Lower, state.CurrentPosition.Upper),
		"baseline_tick": state.BaselineTick,
		"reserve":       state.ReserveAmount,
		"reserve_side":  map[bool]string{true: "token0", false: "token1"}[state.ReserveIsToken0],
		"last_action":   last.Type,
		"phase":         last.Phase,
	}).Info("post-trade pool state")

	report, err := strat.ILView(poolId)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"il0": report.IL0, "il1": report.IL1,
		"il0_pct": fractionPct(report.IL0Fraction), "il1_pct": fractionPct(report.IL1Fraction),
	}).Info("impermanent loss against the refreshed baseline")

	if err := hedger.SaveSession(db, pm, strat); err != nil {
		return err
	}
	logrus.WithField("db", cfg.DBPath).Info("session saved")

	for _, who := range []struct{ name, addr string }{
		{"lp", lp}, {"trader", trader}, {"strategy", strat.Address()},
	} {
		logrus.WithFields(logrus.Fields{
			"account": who.name,
			"token0":  pm.WalletBalance(token0.Hex(), who.addr),
			"token1":  pm.WalletBalance(token1.Hex(), who.addr),
		}).Info("wallet balance")
	}
	return nil
}

func runShow(cfg *simConfig) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}

	var pools []hedger.PoolRecord
	if err := db.Find(&pools).Error; err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	for _, p := range pools {
		fmt.Printf("pool %s\n", p.PoolId)
		if p.State != nil {
			fmt.Printf("  tokens       %s / %s\n", p.State.Currency0, p.State.Currency1)
			fmt.Printf("  fee/spacing  %d / %d\n", p.State.Fee, p.State.TickSpacing)
			fmt.Printf("  tick         %d\n", p.State.LastKnownTick)
			fmt.Printf("  position     [%d, %d]\n", p.State.CurrentPosition.Lower, p.State.CurrentPosition.Upper)
			fmt.Printf("  baseline     tick %d, bounds [%d, %d]\n", p.State.BaselineTick, p.State.BaselinePosition.Lower, p.State.BaselinePosition.Upper)
			side := "token1"
			if p.State.ReserveIsToken0 {
				side = "token0"
			}
			fmt.Printf("  reserve      %s (%s)\n", p.State.ReserveAmount, side)
		}
		if p.Config != nil {
			fmt.Printf("  range        [%d, %d], shift at [%d, %d]\n",
				p.Config.PositionRangeLower, p.Config.PositionRangeUpper,
				p.Config.ShiftLowerDistance, p.Config.ShiftUpperDistance)
			fmt.Printf("  il triggers  %s%% / %s%%\n",
				fractionPct(p.Config.IL0TriggerFraction), fractionPct(p.Config.IL1TriggerFraction))
		}
	}

	var shares []hedger.ShareRecord
	if err := db.Find(&shares).Error; err != nil {
		return fmt.Errorf("load shares: %w", err)
	}
	for _, s := range shares {
		fmt.Printf("shares %s holder %s balance %s\n", s.PoolId, s.Holder, s.Balance)
	}

	var actions []hedger.ActionRecord
	if err := db.Order("timestamp asc").Find(&actions).Error; err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	for _, a := range actions {
		fmt.Printf("action %s\n", hedger.SummarizeActionRecord(&a))
	}
	return nil
}

// runResume rebuilds the live engine from a saved session and prints the
// state the strategy sees, proving the restore round-trips.
func runResume(cfg *simConfig) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}
	owner := common.HexToAddress(cfg.Owner).Hex()
	pm, strat, err := hedger.LoadSession(db, owner)
	if err != nil {
		return err
	}

	for _, poolId := range strat.Registry().Pools() {
		pool, err := pm.GetPool(poolId)
		if err != nil {
			return err
		}
		state, err := strat.PoolStateView(poolId)
		if err != nil {
			return err
		}
		report, err := strat.ILView(poolId)
		if err != nil {
			return err
		}
		key, err := strat.RecoverPoolKey(poolId)
		if err != nil {
			return err
		}
		fmt.Printf("pool %s\n", poolId)
		fmt.Printf("  tokens       %s / %s\n", key.Currency0.Hex(), key.Currency1.Hex())
		fmt.Printf("  tick         %d, sqrt price %s\n", pool.TickCurrent, pool.SqrtPriceX96)
		fmt.Printf("  liquidity    %s\n", pool.Liquidity)
		fmt.Printf("  position     [%d, %d]\n", state.CurrentPosition.Lower, state.CurrentPosition.Upper)
		fmt.Printf("  reserve      %s (%s)\n", state.ReserveAmount, map[bool]string{true: "token0", false: "token1"}[state.ReserveIsToken0])
		fmt.Printf("  total shares %s\n", strat.TotalShares(poolId))
		fmt.Printf("  il           %s / %s (%s%% / %s%%)\n",
			report.IL0, report.IL1, fractionPct(report.IL0Fraction), fractionPct(report.IL1Fraction))
	}
	return nil
}

func newRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "hedgesim",
		Short:        "Scripted pool sessions against the hedging strategy engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./hedgesim.yaml)")
	root.PersistentFlags().String("db", "hedgesim.db", "sqlite database path")
	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted LP and trading session on a fresh pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runDemo(cfg)
		},
	}
	demo.Flags().String("owner", "0x0000000000000000000000000000000000000001", "strategy owner address")
	demo.Flags().String("lp", "0x0000000000000000000000000000000000000002", "liquidity provider address")
	demo.Flags().String("trader", "0x0000000000000000000000000000000000000003", "trader address")
	demo.Flags().String("token0", "0x1000000000000000000000000000000000000001", "currency0 address")
	demo.Flags().String("token1", "0x2000000000000000000000000000000000000002", "currency1 address")
	demo.Flags().Int("fee", 3000, "pool fee in pips")
	demo.Flags().Int("tick-spacing", 10, "pool tick spacing")
	demo.Flags().Int("range-lower", -100, "position range lower offset in ticks")
	demo.Flags().Int("range-upper", 100, "position range upper offset in ticks")
	demo.Flags().Int("shift-lower", 40, "shift threshold offset from the lower bound")
	demo.Flags().Int("shift-upper", -40, "shift threshold offset from the upper bound")
	demo.Flags().Int64("il-trigger-bps", 50, "IL compensation trigger in basis points")
	demo.Flags().Int64("slippage-pips", 20_000, "compensation trade slippage bound in pips")
	demo.Flags().Int64("strategy-float", 50_000, "whole tokens credited to the strategy wallet for settlement")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the pools, shares and action log persisted by a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runShow(cfg)
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Rebuild the live engine from a saved session and print its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runResume(cfg)
		},
	}
	resume.Flags().String("owner", "0x0000000000000000000000000000000000000001", "strategy owner address")

	root.AddCommand(demo, show, resume)
	return root
}

func main() {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded environment from .env")
	}
	if err := newRootCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
