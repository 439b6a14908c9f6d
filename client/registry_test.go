package client

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("registry", func() {
	message := func(subject, payload string) Message {
		return Message{Subject: subject, Payload: []byte(payload)}
	}

	Describe("add()", func() {
		It("rejects an invalid pattern", func() {
			r := newRegistry()
			Expect(r.add("a..b", 1)).NotTo(Succeed())
		})
	})

	Describe("deliver()", func() {
		It("drops a message nobody subscribed to", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())

			Expect(r.deliver(message("other", "hi"))).To(Equal(0))
			Expect(r.drain()).To(BeEmpty())
		})

		It("fans out to every matching subscription exactly once", func() {
			r := newRegistry()
			Expect(r.add("x.*", 1)).To(Succeed())
			Expect(r.add("x.*", 2)).To(Succeed())
			Expect(r.add("y.*", 3)).To(Succeed())

			Expect(r.deliver(message("x.y", "hi"))).To(Equal(2))

			msgs := r.drain()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0]).To(Equal(message("x.y", "hi")))
			Expect(msgs[1]).To(Equal(message("x.y", "hi")))
		})

		It("signals the wake channel", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())

			r.deliver(message("greet", "hi"))
			Expect(r.wake).To(Receive())
		})

		It("preserves arrival order within a subscription", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())

			r.deliver(message("greet", "one"))
			r.deliver(message("greet", "two"))
			r.deliver(message("greet", "three"))

			msgs := r.drain()
			Expect(msgs).To(Equal([]Message{
				message("greet", "one"),
				message("greet", "two"),
				message("greet", "three"),
			}))
		})
	})

	Describe("drain()", func() {
		It("empties the queues", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())

			r.deliver(message("greet", "hi"))
			Expect(r.drain()).To(HaveLen(1))
			Expect(r.drain()).To(BeEmpty())
		})
	})

	Describe("removeByPattern()", func() {
		It("returns the sids it removed", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())
			Expect(r.add("greet", 2)).To(Succeed())
			Expect(r.add("other", 3)).To(Succeed())

			Expect(r.removeByPattern("greet")).To(Equal([]int64{1, 2}))
			Expect(r.sids()).To(Equal([]int64{3}))
		})
	})

	Describe("terminate()", func() {
		It("releases queued messages and refuses new ones", func() {
			r := newRegistry()
			Expect(r.add("greet", 1)).To(Succeed())

			r.deliver(message("greet", "hi"))
			r.terminate()

			Expect(r.drain()).To(BeEmpty())
			Expect(r.deliver(message("greet", "hi"))).To(Equal(0))
		})

		It("does not panic when called twice", func() {
			r := newRegistry()
			Expect(func() { r.terminate() }).NotTo(Panic())
			Expect(func() { r.terminate() }).NotTo(Panic())
		})
	})
})
