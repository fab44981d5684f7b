// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/auth/postgres"
)

func pendingReporter(name, email string) *auth.Account {
	a, err := auth.NewReporterApplication(auth.Application{
		Name:              name,
		Email:             email,
		Phone:             "+9779801234567",
		CitizenshipNumber: "27-01-75-12345",
		ProfilePhotoURL:   "https://cdn.example.com/p.jpg",
		IDCardURL:         "https://cdn.example.com/id.jpg",
	}, "hash")
	Expect(err).NotTo(HaveOccurred())
	return a
}

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAccounts()
		repo = postgres.NewAccountRepository(pool)
	})

	Describe("Create", func() {
		It("round-trips an account", func() {
			a := pendingReporter("Alice", "alice@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			got, err := repo.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("alice@example.com"))
			Expect(got.Status).To(Equal(auth.StatusPending))
			Expect(got.LicenseKey).To(BeNil())
		})

		It("rejects an email differing only in case", func() {
			Expect(repo.Create(ctx, pendingReporter("Alice", "alice@example.com"))).To(Succeed())

			dup := pendingReporter("Other", "alice@example.com")
			dup.Email = "ALICE@Example.com"
			err := repo.Create(ctx, dup)
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("finds accounts by email case-insensitively", func() {
			Expect(repo.Create(ctx, pendingReporter("Alice", "alice@example.com"))).To(Succeed())
			got, err := repo.GetByEmail(ctx, "Alice@EXAMPLE.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Alice"))
		})
	})

	Describe("UpdateStatusAndLicense", func() {
		It("refuses a license already held by another reporter", func() {
			a := pendingReporter("Alice", "alice@example.com")
			b := pendingReporter("Bob", "bob@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())
			Expect(repo.Create(ctx, b)).To(Succeed())

			key := "2026-AAAAAAAA"
			_, err := repo.UpdateStatusAndLicense(ctx, a.ID, auth.StatusPending, auth.StatusApproved, &key)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.UpdateStatusAndLicense(ctx, b.ID, auth.StatusPending, auth.StatusApproved, &key)
			Expect(err).To(MatchError(auth.ErrLicenseTaken))

			stored, err := repo.GetByID(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(auth.StatusPending))
		})

		It("records approval and revocation times", func() {
			a := pendingReporter("Alice", "alice@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())
			key := "2026-BBBBBBBB"

			approved, err := repo.UpdateStatusAndLicense(ctx, a.ID, auth.StatusPending, auth.StatusApproved, &key)
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.ApprovedAt).NotTo(BeNil())

			revoked, err := repo.UpdateStatusAndLicense(ctx, a.ID, auth.StatusApproved, auth.StatusRevoked, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked.RevokedAt).NotTo(BeNil())
			Expect(revoked.LicenseKey).To(BeNil())
		})

		It("reports a stale status", func() {
			a := pendingReporter("Alice", "alice@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			_, err := repo.UpdateStatusAndLicense(ctx, a.ID, auth.StatusApproved, auth.StatusRevoked, nil)
			Expect(err).To(MatchError(auth.ErrStaleStatus))
		})
	})

	Describe("List", func() {
		It("searches name, email and license", func() {
			a := pendingReporter("Bob Smith", "bob@example.com")
			b := pendingReporter("Carol", "carol@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())
			Expect(repo.Create(ctx, b)).To(Succeed())
			key := "2026-CCCCCCCC"
			_, err := repo.UpdateStatusAndLicense(ctx, b.ID, auth.StatusPending, auth.StatusApproved, &key)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.List(ctx, auth.ListFilter{Search: "cccc"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal(b.ID))

			got, err = repo.List(ctx, auth.ListFilter{Role: auth.RoleReporter, Status: auth.StatusPending})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal(a.ID))

			got, err = repo.List(ctx, auth.ListFilter{Search: "%"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})

	Describe("concurrent approval", func() {
		It("lets exactly one admin win", func() {
			svc, err := auth.NewLifecycleService(repo, auth.NewYearCodeGenerator(auth.DefaultLicenseLength),
				auth.DefaultLicenseAttempts, slog.New(slog.NewTextHandler(io.Discard, nil)))
			Expect(err).NotTo(HaveOccurred())

			a := pendingReporter("Alice", "alice@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			admin := auth.Actor{ID: auth.NewID().String(), Role: auth.RoleAdmin}
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range 6 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := svc.Approve(ctx, admin, a.ID); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})
	})
})
