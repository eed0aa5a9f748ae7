package validation

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
)

func chunkSize(n int) *int { return &n }

var _ = Describe("Validation", func() {
	Describe("ValidateBatchRequest", func() {
		Context("with a valid request", func() {
			It("should pass validation", func() {
				request := &BatchRequest{Keywords: []string{"golang", "rust"}}

				Expect(ValidateBatchRequest(request)).To(Succeed())
			})

			It("should accept the chunk size bounds", func() {
				for _, size := range []int{1, 20, 50} {
					request := &BatchRequest{Keywords: []string{"kw"}, ChunkSize: chunkSize(size)}
					Expect(ValidateBatchRequest(request)).To(Succeed())
				}
			})

			It("should accept exactly 200 keywords", func() {
				keywords := make([]string, 200)
				for i := range keywords {
					keywords[i] = fmt.Sprintf("keyword%d", i)
				}
				request := &BatchRequest{Keywords: keywords}

				Expect(ValidateBatchRequest(request)).To(Succeed())
			})
		})

		Context("when keywords are invalid", func() {
			It("should reject an empty list", func() {
				request := &BatchRequest{Keywords: []string{}}

				err := ValidateBatchRequest(request)
				Expect(err).To(HaveOccurred())
				Expect(apperrors.IsValidation(err)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("between 1 and 200"))
			})

			It("should reject a missing list", func() {
				err := ValidateBatchRequest(&BatchRequest{})
				Expect(err).To(HaveOccurred())
				Expect(apperrors.IsValidation(err)).To(BeTrue())
			})

			It("should reject more than 200 keywords", func() {
				keywords := make([]string, 201)
				for i := range keywords {
					keywords[i] = fmt.Sprintf("keyword%d", i)
				}
				request := &BatchRequest{Keywords: keywords}

				err := ValidateBatchRequest(request)
				Expect(err).To(HaveOccurred())
				Expect(apperrors.IsValidation(err)).To(BeTrue())
			})

			It("should reject blank keywords", func() {
				request := &BatchRequest{Keywords: []string{"ok", "   "}}

				err := ValidateBatchRequest(request)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("blank"))
			})
		})

		Context("when chunk size is invalid", func() {
			It("should reject zero", func() {
				request := &BatchRequest{Keywords: []string{"kw"}, ChunkSize: chunkSize(0)}

				err := ValidateBatchRequest(request)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("chunk_size"))
			})

			It("should reject values above 50", func() {
				request := &BatchRequest{Keywords: []string{"kw"}, ChunkSize: chunkSize(51)}

				err := ValidateBatchRequest(request)
				Expect(err).To(HaveOccurred())
				Expect(apperrors.IsValidation(err)).To(BeTrue())
			})
		})
	})

	Describe("EffectiveChunkSize", func() {
		It("should default to 20", func() {
			request := &BatchRequest{Keywords: []string{"kw"}}
			Expect(request.EffectiveChunkSize()).To(Equal(20))
		})

		It("should honor an explicit value", func() {
			request := &BatchRequest{Keywords: []string{"kw"}, ChunkSize: chunkSize(7)}
			Expect(request.EffectiveChunkSize()).To(Equal(7))
		})
	})
})
