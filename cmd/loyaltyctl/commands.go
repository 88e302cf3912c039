package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

func cleanupCodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-codes",
		Short: "Delete expired visit codes and used codes past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.svc.CleanupExpiredCodes(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]int64{"deleted": n})
		},
	}
}

func expireVouchersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-vouchers",
		Short: "Mark active vouchers past their validity as EXPIRED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.svc.MarkExpiredVouchers(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]int64{"expired": n})
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show loyalty, voucher, code and visit statistics",
		Long: `Show statistics in one report:
- families and cycle distribution
- vouchers by status
- visit codes
- visits by source and day (optionally within --from/--to)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fromT, err := parseDay(from, false)
			if err != nil {
				return err
			}
			toT, err := parseDay(to, true)
			if err != nil {
				return err
			}

			loyalty, err := a.svc.LoyaltyStats(ctx)
			if err != nil {
				return err
			}
			vouchers, err := a.svc.VoucherStats(ctx)
			if err != nil {
				return err
			}
			codes, err := a.svc.CodesStats(ctx)
			if err != nil {
				return err
			}
			visits, err := a.svc.VisitStats(ctx, fromT, toT)
			if err != nil {
				return err
			}
			return a.print(cmd, struct {
				Loyalty  *services.LoyaltyStats `json:"loyalty"`
				Vouchers services.VoucherStats  `json:"vouchers"`
				Codes    services.CodesStats    `json:"codes"`
				Visits   *services.VisitStats   `json:"visits"`
			}{loyalty, vouchers, codes, visits})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	return cmd
}

func createFamilyCmd(a *app) *cobra.Command {
	var in services.NewFamily
	var lang string
	cmd := &cobra.Command{
		Use:   "create-family",
		Short: "Register a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Lang = models.Lang(lang)
			f, err := a.svc.CreateFamily(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.print(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&in.Phone, "phone", "p", "", "phone number (PT numbers may omit +351)")
	cmd.Flags().StringVarP(&lang, "lang", "l", "EN", "language (EN, PT)")
	cmd.Flags().BoolVar(&in.ConsentMarketing, "consent-marketing", false, "family agreed to marketing messages")
	cmd.Flags().BoolVar(&in.ConsentDataProcessing, "consent-data", true, "family agreed to data processing")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [familyID|clientCode]",
		Short: "Show a family's loyalty status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.familyID(cmd, args[0])
			if err != nil {
				return err
			}
			st, err := a.svc.LoyaltyStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, st)
		},
	}
}

func issueCodeCmd(a *app) *cobra.Command {
	var ttl time.Duration
	var staff string
	cmd := &cobra.Command{
		Use:   "issue-code [familyID|clientCode]",
		Short: "Issue a 6-digit visit code, invalidating the family's open codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.familyID(cmd, args[0])
			if err != nil {
				return err
			}
			var staffID *string
			if staff != "" {
				staffID = &staff
			}
			code, err := a.svc.IssueCode(cmd.Context(), id, ttl, staffID)
			if err != nil {
				return err
			}
			return a.print(cmd, code)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "code lifetime (default from config)")
	cmd.Flags().StringVar(&staff, "staff", "", "issuing staff id")
	return cmd
}

func confirmCmd(a *app) *cobra.Command {
	var req services.ConfirmRequest
	var source, staff, note string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a visit by --code, --qr or --family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := services.ParseSource(source)
			if err != nil {
				return err
			}
			req.Source = src
			if staff != "" {
				req.StaffID = &staff
			}
			if note != "" {
				req.Note = &note
			}
			res, err := a.svc.ConfirmVisit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(cmd, res)
		},
	}
	cmd.Flags().StringVar(&req.Code, "code", "", "6-digit visit code")
	cmd.Flags().StringVar(&req.QRPayload, "qr", "", "scanned family QR payload")
	cmd.Flags().StringVar(&req.FamilyID, "family", "", "family id (desk confirmation)")
	cmd.Flags().StringVar(&source, "source", "", "CODE, QR, DESK or MANUAL")
	cmd.Flags().StringVar(&staff, "staff", "", "confirming staff id")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	return cmd
}

func issueVoucherCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-voucher [familyID|clientCode]",
		Short: "Issue a voucher, or return the family's active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.familyID(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := a.svc.IssueVoucher(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, v)
		},
	}
}

func redeemCmd(a *app) *cobra.Command {
	var staff string
	cmd := &cobra.Command{
		Use:   "redeem [voucherCode]",
		Short: "Redeem an active voucher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.svc.RedeemVoucher(cmd.Context(), args[0], staff)
			if err != nil {
				return err
			}
			return a.print(cmd, v)
		},
	}
	cmd.Flags().StringVar(&staff, "staff", "", "redeeming staff id")
	_ = cmd.MarkFlagRequired("staff")
	return cmd
}
