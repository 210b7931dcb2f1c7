package receipt

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

var _ = Describe("BoltStore", func() {
	var (
		ctx   context.Context
		path  string
		store *BoltStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "hisab.db")
		var err error
		store, err = NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("LoadUser", func() {
		When("no user is stored", func() {
			It("returns nil without an error", func() {
				user, err := store.LoadUser(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(user).To(BeNil())
			})
		})

		When("a user is stored", func() {
			BeforeEach(func() {
				Expect(store.SaveUser(ctx, &User{ID: "user_1", Name: "Ada"})).To(Succeed())
			})

			It("returns it", func() {
				user, err := store.LoadUser(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(user).To(Equal(&User{ID: "user_1", Name: "Ada"}))
			})
		})

		When("the record is corrupt", func() {
			BeforeEach(func() {
				writeRaw(store, userKey, "{not json")
			})

			It("returns ErrCorruptRecord", func() {
				_, err := store.LoadUser(ctx)
				Expect(err).To(MatchError(ErrCorruptRecord))
			})
		})
	})

	Describe("SaveUser", func() {
		It("requires a user", func() {
			Expect(store.SaveUser(ctx, nil)).To(MatchError("user is required"))
		})
	})

	Describe("LoadReceipts", func() {
		When("nothing is stored", func() {
			It("returns an empty list", func() {
				receipts, err := store.LoadReceipts(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
				Expect(receipts).To(BeEmpty())
			})
		})

		When("a list is stored", func() {
			BeforeEach(func() {
				Expect(store.SaveReceipts(ctx, []*Receipt{newTestReceipt("B"), newTestReceipt("A")})).To(Succeed())
			})

			It("preserves the order", func() {
				receipts, err := store.LoadReceipts(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(merchants(receipts)).To(Equal([]string{"B", "A"}))
				Expect(receipts[0].Items).To(HaveLen(1))
			})
		})

		When("the stored value is null", func() {
			BeforeEach(func() {
				writeRaw(store, receiptsKey, "null")
			})

			It("returns an empty list", func() {
				receipts, err := store.LoadReceipts(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
			})
		})

		When("the record is corrupt", func() {
			BeforeEach(func() {
				writeRaw(store, receiptsKey, "[{")
			})

			It("returns ErrCorruptRecord", func() {
				_, err := store.LoadReceipts(ctx)
				Expect(err).To(MatchError(ErrCorruptRecord))
			})
		})
	})

	Describe("ClearAll", func() {
		It("removes both records", func() {
			Expect(store.SaveUser(ctx, &User{ID: "user_1"})).To(Succeed())
			Expect(store.SaveReceipts(ctx, []*Receipt{newTestReceipt("A")})).To(Succeed())

			Expect(store.ClearAll(ctx)).To(Succeed())

			user, err := store.LoadUser(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(BeNil())
			receipts, err := store.LoadReceipts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
		})

		It("succeeds when nothing is stored", func() {
			Expect(store.ClearAll(ctx)).To(Succeed())
		})
	})

	It("persists across reopen", func() {
		Expect(store.SaveUser(ctx, &User{ID: "user_1"})).To(Succeed())
		Expect(store.Close()).To(Succeed())

		var err error
		store, err = NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
		user, err := store.LoadUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ID).To(Equal("user_1"))
	})
})

func writeRaw(store *BoltStore, key, value string) {
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucketName)).Put([]byte(key), []byte(value))
	})
	Expect(err).NotTo(HaveOccurred())
}
