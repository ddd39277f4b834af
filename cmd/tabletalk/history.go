// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyConnection string

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show conversations, or the messages of one conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			messages, err := store.ListMessages(ctx, args[0], 0)
			if err != nil {
				return err
			}
			for _, msg := range messages {
				fmt.Printf("[%s] %s\n%s\n\n",
					msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.Role, msg.Content)
			}
			return nil
		}

		if historyConnection == "" {
			return fmt.Errorf("provide a conversation id, or --connection to list its conversations")
		}
		connection, err := store.GetConnectionByName(ctx, historyConnection)
		if err != nil {
			return fmt.Errorf("no connection named %q", historyConnection)
		}
		conversations, err := store.ListConversations(ctx, connection.ID)
		if err != nil {
			return err
		}
		for _, conv := range conversations {
			fmt.Printf("%s\t%s\t%s\n", conv.ID, conv.CreatedAt.Format("2006-01-02"), conv.Title)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyConnection, "connection", "c", "", "list conversations for this connection")
}
