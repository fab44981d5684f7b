// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

//go:build integration

package cli_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Database commands", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	Describe("migrate", func() {
		It("applies every migration and reports a clean version", func() {
			output, err := tribunal(ctx, "", "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
			Expect(output).To(ContainSubstring("Applied 2 migration(s)"))

			output, err = tribunal(ctx, "", "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", output)
			Expect(output).To(ContainSubstring("Version: 2 (clean)"))

			output, err = tribunal(ctx, "", "migrate", "up")
			Expect(err).NotTo(HaveOccurred())
			Expect(output).To(ContainSubstring("No pending migrations"))
		})

		It("rolls everything back with --all", func() {
			_, err := tribunal(ctx, "", "migrate", "up")
			Expect(err).NotTo(HaveOccurred())

			output, err := tribunal(ctx, "", "migrate", "down", "--all")
			Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", output)

			var exists bool
			err = env.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'accounts')`,
			).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Describe("seed-admin", func() {
		BeforeEach(func() {
			output, err := tribunal(ctx, "", "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		})

		It("creates an approved admin once", func() {
			output, err := tribunal(ctx, "correct horse\n",
				"seed-admin", "--email", "Ada@Tribunal.example", "--name", "Ada", "--password-stdin")
			Expect(err).NotTo(HaveOccurred(), "seed-admin failed: %s", output)
			Expect(output).To(ContainSubstring("Created admin"))

			var role, status string
			var license *string
			err = env.pool.QueryRow(ctx,
				`SELECT role, status, license_key FROM accounts WHERE lower(email) = 'ada@tribunal.example'`,
			).Scan(&role, &status, &license)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal("admin"))
			Expect(status).To(Equal("approved"))
			Expect(license).To(BeNil())

			output, err = tribunal(ctx, "correct horse\n",
				"seed-admin", "--email", "ada@tribunal.example", "--password-stdin")
			Expect(err).NotTo(HaveOccurred(), "second seed-admin failed: %s", output)
			Expect(output).To(ContainSubstring("already exists"))

			var count int
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})

		It("rejects a short password without writing", func() {
			output, err := tribunal(ctx, "short\n",
				"seed-admin", "--email", "ada@tribunal.example", "--password-stdin")
			Expect(err).To(HaveOccurred())
			Expect(output).To(ContainSubstring("password"))

			var count int
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())
		})
	})
})
