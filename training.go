package go_siamrpn_training

import (
	"github.com/okieraised/go-siamrpn-training/config"
	"github.com/okieraised/go-siamrpn-training/modules"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// TrainingLossPipeline wires anchor target assignment and loss aggregation
// into the single entry point the training loop calls per batch.
type TrainingLossPipeline struct {
	anchorTarget *modules.AnchorTargetClient
	rpnLoss      *modules.RPNLossClient
	prediction   *modules.SiamRPNClient
}

// NewTrainingLossPipeline initializes the loss pipeline. The anchor set is
// generated once here and reused across every batch.
func NewTrainingLossPipeline(anchorCfg *config.AnchorParams, targetCfg *config.AnchorTargetParams, lossCfg *config.RPNLossParams) (*TrainingLossPipeline, error) {
	pipeline := &TrainingLossPipeline{}

	anchorTarget, err := modules.NewAnchorTargetClient(anchorCfg, targetCfg)
	if err != nil {
		return nil, err
	}
	pipeline.anchorTarget = anchorTarget

	rpnLoss, err := modules.NewRPNLossClient(lossCfg)
	if err != nil {
		return nil, err
	}
	pipeline.rpnLoss = rpnLoss

	return pipeline, nil
}

// NewTrainingLossPipelineWithNetwork additionally attaches the Triton-served
// Siamese network so losses can be computed straight from frame pairs.
func NewTrainingLossPipelineWithNetwork(tritonClient *gotritonclient.TritonGRPCClient, modelCfg *config.SiamRPNParams, anchorCfg *config.AnchorParams, targetCfg *config.AnchorTargetParams, lossCfg *config.RPNLossParams) (*TrainingLossPipeline, error) {
	pipeline, err := NewTrainingLossPipeline(anchorCfg, targetCfg, lossCfg)
	if err != nil {
		return nil, err
	}

	prediction, err := modules.NewSiamRPNClient(tritonClient, modelCfg, anchorCfg)
	if err != nil {
		return nil, err
	}
	pipeline.prediction = prediction

	return pipeline, nil
}

// Anchors returns the cached anchor set in corner form.
func (p *TrainingLossPipeline) Anchors() *tensor.Dense {
	return p.anchorTarget.Anchors()
}

// AssignTargets exposes the matcher output for callers that want the
// supervision tensors without a loss value.
func (p *TrainingLossPipeline) AssignTargets(gt *tensor.Dense) (*modules.AnchorTargetResult, error) {
	return p.anchorTarget.Assign(gt)
}

// ComputeLoss assigns anchor targets for the (batch, 4) ground-truth tensor
// and aggregates both loss terms against the network predictions.
func (p *TrainingLossPipeline) ComputeLoss(gt, score, box *tensor.Dense) (*modules.LossResult, error) {
	assigned, err := p.anchorTarget.Assign(gt)
	if err != nil {
		return nil, err
	}
	return p.rpnLoss.Compute(assigned, score, box)
}

// ComputeLossFromFrames runs the attached Siamese network on one
// template/search pair and computes the loss against its predictions.
func (p *TrainingLossPipeline) ComputeLossFromFrames(template, search gocv.Mat, gt *tensor.Dense) (*modules.LossResult, error) {
	if p.prediction == nil {
		return nil, errors.New("pipeline was built without a prediction network")
	}
	score, box, err := p.prediction.Infer(template, search)
	if err != nil {
		return nil, err
	}
	return p.ComputeLoss(gt, score, box)
}

// ComputeLossFromFrameBytes decodes raw encoded template/search frames and
// computes the loss against the attached network's predictions.
func (p *TrainingLossPipeline) ComputeLossFromFrameBytes(templateBytes, searchBytes []byte, gt *tensor.Dense) (*modules.LossResult, error) {
	if p.prediction == nil {
		return nil, errors.New("pipeline was built without a prediction network")
	}
	score, box, err := p.prediction.InferBytes(templateBytes, searchBytes)
	if err != nil {
		return nil, err
	}
	return p.ComputeLoss(gt, score, box)
}
