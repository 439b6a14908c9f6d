package subject_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/3kwa/goingnats/subject"
)

var _ = Describe("subject", func() {
	Describe("Match()", func() {
		It("matches literal subjects exactly", func() {
			Expect(subject.Match("a.b.c", "a.b.c")).To(BeTrue())
			Expect(subject.Match("a.b.c", "a.b.d")).To(BeFalse())
			Expect(subject.Match("a.b", "a.b.c")).To(BeFalse())
			Expect(subject.Match("a.b.c", "a.b")).To(BeFalse())
		})

		It("matches exactly one token with *", func() {
			Expect(subject.Match("a.b.c", "a.*.c")).To(BeTrue())
			Expect(subject.Match("a.b.b.c", "a.*.c")).To(BeFalse())
			Expect(subject.Match("a.c", "a.*.c")).To(BeFalse())
			Expect(subject.Match("greet", "*")).To(BeTrue())
			Expect(subject.Match("greet.all", "*")).To(BeFalse())
		})

		It("matches one or more trailing tokens with >", func() {
			Expect(subject.Match("a.b.c", "a.>")).To(BeTrue())
			Expect(subject.Match("a.b", "a.>")).To(BeTrue())
			Expect(subject.Match("a", "a.>")).To(BeFalse())
			Expect(subject.Match("b.c", "a.>")).To(BeFalse())
		})

		It("combines * and >", func() {
			Expect(subject.Match("time.time.now", "time.*.>")).To(BeTrue())
			Expect(subject.Match("time.time", "time.*.>")).To(BeFalse())
		})
	})

	Describe("Valid()", func() {
		It("accepts literal patterns and returns their tokens", func() {
			Expect(subject.Valid("time.time")).To(Equal([]string{"time", "time"}))
		})

		It("accepts standalone wildcards", func() {
			Expect(subject.Valid("a.*.c")).To(Equal([]string{"a", "*", "c"}))
			Expect(subject.Valid("a.>")).To(Equal([]string{"a", ">"}))
		})

		It("rejects an empty pattern", func() {
			_, err := subject.Valid("")
			Expect(err).To(MatchError("invalid subject: must not be empty"))
		})

		It("rejects empty tokens", func() {
			_, err := subject.Valid("a..c")
			Expect(err).To(HaveOccurred())
		})

		It("rejects > anywhere but the final token", func() {
			_, err := subject.Valid(">.a")
			Expect(err).To(HaveOccurred())
		})

		It("rejects wildcards glued to other characters", func() {
			_, err := subject.Valid("a.b*.c")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidLiteral()", func() {
		It("accepts a concrete subject", func() {
			Expect(subject.ValidLiteral("greet")).To(Equal([]string{"greet"}))
		})

		It("rejects wildcards", func() {
			_, err := subject.ValidLiteral("a.*")
			Expect(err).To(HaveOccurred())

			_, err = subject.ValidLiteral("a.>")
			Expect(err).To(HaveOccurred())
		})
	})
})
