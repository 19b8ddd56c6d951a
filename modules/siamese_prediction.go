package modules

import (
	"image"

	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/okieraised/go-siamrpn-training/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// SiamRPNClient adapts the Triton-served Siamese network. It consumes a
// template/search frame pair and produces the two per-anchor prediction
// tensors the loss pipeline consumes. The network internals, including the
// cross-correlation merge of the two streams, stay behind the model server.
type SiamRPNClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.SiamRPNParams
	AnchorParams *config.AnchorParams
	ModelConfig  *triton_proto.ModelConfigResponse

	pixelMeans []float32
	pixelStds  []float32
	pixelScale float32
}

func NewSiamRPNClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.SiamRPNParams, anchorCfg *config.AnchorParams) (*SiamRPNClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model params")
	}
	if err := anchorCfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid anchor params")
	}

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}

	client := &SiamRPNClient{
		tritonClient: tritonClient,
		ModelParams:  cfg,
		AnchorParams: anchorCfg,
		ModelConfig:  inferenceConfig,
		pixelMeans:   []float32{0, 0, 0},
		pixelStds:    []float32{1, 1, 1},
		pixelScale:   1.0,
	}
	return client, nil
}

func (c *SiamRPNClient) preprocess(img gocv.Mat, size int) (*tensor.Dense, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: size, Y: size}, 0.0, 0.0, gocv.InterpolationLinear)

	return utils.MatToCHWTensor(resized, c.pixelMeans, c.pixelStds, c.pixelScale)
}

// InferBytes decodes raw encoded template/search frames and runs Infer on
// the decoded pair.
func (c *SiamRPNClient) InferBytes(templateBytes, searchBytes []byte) (*tensor.Dense, *tensor.Dense, error) {
	template, err := utils.ImageToOpenCV(templateBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode template frame")
	}
	defer template.Close()

	search, err := utils.ImageToOpenCV(searchBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode search frame")
	}
	defer search.Close()

	return c.Infer(*template, *search)
}

// Infer runs the Siamese network on one template/search pair and returns
// the classification-score tensor of shape (1, numAnchors, 2) and the
// box-regression tensor of shape (1, numAnchors, 4).
func (c *SiamRPNClient) Infer(template, search gocv.Mat) (*tensor.Dense, *tensor.Dense, error) {
	templateTensors, err := c.preprocess(template, c.ModelParams.TemplateSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to preprocess template frame")
	}
	searchTensors, err := c.preprocess(search, c.ModelParams.SearchSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to preprocess search frame")
	}

	if len(c.ModelConfig.Config.Input) != 2 {
		return nil, nil, errors.Errorf("model must take template and search inputs, got %d inputs", len(c.ModelConfig.Config.Input))
	}

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName: c.ModelParams.ModelName,
	}

	pairContents := [][]float32{templateTensors.Float32s(), searchTensors.Float32s()}
	modelInputs := make([]*triton_proto.ModelInferRequest_InferInputTensor, 0)
	for idx, inputCfg := range c.ModelConfig.Config.Input {
		modelInput := &triton_proto.ModelInferRequest_InferInputTensor{
			Name:     inputCfg.Name,
			Datatype: inputCfg.DataType.String()[5:],
			Shape:    inputCfg.Dims,
			Contents: &triton_proto.InferTensorContents{
				Fp32Contents: pairContents[idx],
			},
		}
		modelInputs = append(modelInputs, modelInput)
	}
	modelRequest.Inputs = modelInputs

	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, nil, err
	}

	numAnchors := c.AnchorParams.NumAnchors()
	var score, box *tensor.Dense
	for idx := range inferResp.Outputs {
		raw := utils.BytesToT32[float32](inferResp.RawOutputContents[idx])
		switch len(raw) {
		case numAnchors * 2:
			score = tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(1, numAnchors, 2),
				tensor.WithBacking(raw),
			)
		case numAnchors * 4:
			box = tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(1, numAnchors, 4),
				tensor.WithBacking(raw),
			)
		default:
			return nil, nil, errors.Errorf("model output %s has %d elements, want %d or %d",
				inferResp.Outputs[idx].Name, len(raw), numAnchors*2, numAnchors*4)
		}
	}
	if score == nil || box == nil {
		return nil, nil, errors.New("model did not produce both score and box outputs")
	}

	return score, box, nil
}
