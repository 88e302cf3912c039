package main

import (
	"github.com/spf13/cobra"

	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

func subscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe [familyID|clientCode] [EVENTS|PROMOS|NEWS]",
		Short: "Opt a family with marketing consent into a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.familyID(cmd, args[0])
			if err != nil {
				return err
			}
			topic, err := services.ParseTopic(args[1])
			if err != nil {
				return err
			}
			sub, err := a.svc.Subscribe(cmd.Context(), id, topic)
			if err != nil {
				return err
			}
			return a.print(cmd, sub)
		},
	}
}

func unsubscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe [familyID|clientCode] [EVENTS|PROMOS|NEWS]",
		Short: "Opt a family out of a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.familyID(cmd, args[0])
			if err != nil {
				return err
			}
			topic, err := services.ParseTopic(args[1])
			if err != nil {
				return err
			}
			sub, err := a.svc.Unsubscribe(cmd.Context(), id, topic)
			if err != nil {
				return err
			}
			return a.print(cmd, sub)
		},
	}
}

func subscriptionsCmd(a *app) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Show subscriber counts, or the subscribers of --topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				st, err := a.svc.SubscriptionStats(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, st)
			}
			t, err := services.ParseTopic(topic)
			if err != nil {
				return err
			}
			fs, err := a.svc.Subscribers(cmd.Context(), t)
			if err != nil {
				return err
			}
			return a.print(cmd, fs)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "list the subscribers of EVENTS, PROMOS or NEWS")
	return cmd
}

func broadcastsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "broadcasts",
		Short: "Show broadcast delivery stats and the most recent broadcasts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.svc.BroadcastStats(cmd.Context())
			if err != nil {
				return err
			}
			recent, err := a.svc.ListBroadcasts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.print(cmd, struct {
				Stats  services.BroadcastStats `json:"stats"`
				Recent []models.Broadcast      `json:"recent"`
			}{st, recent})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent broadcasts")
	return cmd
}
